package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/history"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/notification"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

type apiFixture struct {
	server  *Server
	manager *alerting.Manager
	history *history.Store
	browser *notification.BrowserChannel
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := history.NewStore(nil, 100, logger.NewNop())
	m := metrics.New()
	mgr := alerting.NewManager(alerting.Options{History: store, Metrics: m})
	browser := notification.NewBrowserChannel(conf.BrowserSettings{Enabled: true})

	srv := NewServer(ServerOptions{
		Metrics: m,
		Controller: ControllerOptions{
			Manager: mgr,
			History: store,
			Browser: browser,
		},
	})
	return &apiFixture{server: srv, manager: mgr, history: store, browser: browser}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const cpuRuleJSON = `{
	"name": "High CPU",
	"type": "system",
	"severity": "high",
	"conditions": [{"field": "system.cpu_percent", "operator": ">", "value": 85}],
	"channels": ["console", "browser"]
}`

func (f *apiFixture) createCPURule(t *testing.T) alerting.Rule {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/rules", cpuRuleJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[alerting.Rule](t, rec)
}

func (f *apiFixture) fireCPU(t *testing.T) alerting.Alert {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/check", `{"snapshot": {"system": {"cpu_percent": 91}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[struct {
		Alerts []alerting.Alert `json:"alerts"`
		Count  int             `json:"count"`
	}](t, rec)
	require.Equal(t, 1, out.Count)
	return out.Alerts[0]
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.createCPURule(t)
	f.fireCPU(t)
	rec = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vigil_alerts_triggered_total")
}

func TestRuleCRUD(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rule := f.createCPURule(t)
	assert.Equal(t, alerting.RuleIDFromName("High CPU"), rule.ID)
	assert.Equal(t, alerting.SeverityHigh, rule.Severity)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", cpuRuleJSON)
	assert.Equal(t, http.StatusConflict, rec.Code, "same name yields same ID")

	rec = f.do(t, http.MethodGet, "/api/v1/rules/"+rule.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/rules/"+rule.ID, `{
		"name": "High CPU",
		"severity": "critical",
		"conditions": [{"field": "system.cpu_percent", "operator": ">=", "value": 95}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[alerting.Rule](t, rec)
	assert.Equal(t, alerting.SeverityCritical, updated.Severity)
	assert.Equal(t, rule.CreatedAt.Unix(), updated.CreatedAt.Unix())

	rec = f.do(t, http.MethodPatch, "/api/v1/rules/"+rule.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["enabled"])

	rec = f.do(t, http.MethodPatch, "/api/v1/rules/"+rule.ID+"/toggle", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ := f.manager.GetRule(rule.ID)
	assert.True(t, got.Enabled)

	rec = f.do(t, http.MethodGet, "/api/v1/rules?enabled=false", "")
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])

	rec = f.do(t, http.MethodDelete, "/api/v1/rules/"+rule.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/rules/"+rule.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRule_Validation(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"bad severity", `{"name":"x","severity":"meh","conditions":[{"field":"a","operator":">","value":1}]}`},
		{"bad operator", `{"name":"x","severity":"low","conditions":[{"field":"a","operator":"~","value":1}]}`},
		{"no conditions", `{"name":"x","severity":"low","conditions":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
	assert.Empty(t, f.manager.GetRules())
}

func TestAlertLifecycle(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	f.createCPURule(t)
	alert := f.fireCPU(t)

	rec := f.do(t, http.MethodGet, "/api/v1/alerts/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", `{"actor":"oncall","notes":"looking"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	acked := decode[alerting.Alert](t, rec)
	assert.Equal(t, alerting.StatusAcknowledged, acked.Status)
	assert.Equal(t, "oncall", acked.AcknowledgedBy)

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/snooze", `{"minutes": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/snooze", `{"minutes": 30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alerting.StatusSnoozed, decode[alerting.Alert](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", `{"actor":"oncall"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "snoozed alerts cannot be resolved")

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/"+alert.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/missing/resolve", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/alerts/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryAndStatistics(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	rule := f.createCPURule(t)
	f.fireCPU(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules/"+rule.ID+"/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/rules/nope/test", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[struct {
		History []alerting.Alert `json:"history"`
		Limit   int              `json:"limit"`
	}](t, rec)
	require.Len(t, hist.History, 1)
	assert.Equal(t, 1, hist.Limit)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/history?limit=5000&rule_id="+rule.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(maxHistoryLimit), decode[map[string]any](t, rec)["limit"])

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[alerting.ManagerStatistics](t, rec)
	assert.Equal(t, 2, stats.TotalAlerts)
	assert.Equal(t, 2, stats.ActiveAlerts)
	assert.Equal(t, 1, stats.TotalRules)

	rec = f.do(t, http.MethodDelete, "/api/v1/alerts/history", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.history.Len())

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/cleanup?days=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["removed"])
}

func TestCheckSnapshot_BareAndWithHistory(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", `{
		"name": "Spike",
		"severity": "medium",
		"conditions": [{"field": "load", "operator": "percentage_change", "value": 50}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/check", `{"load": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"], "no history")

	rec = f.do(t, http.MethodPost, "/api/v1/check", `{"snapshot": {"load": 3}, "history": [{"load": 1}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = f.do(t, http.MethodPost, "/api/v1/check", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBrowserNotifications(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	alert := &alerting.Alert{ID: "b-1", RuleName: "High CPU", Severity: alerting.SeverityHigh}
	require.NoError(t, f.browser.Send(t.Context(), alert))

	rec := f.do(t, http.MethodGet, "/api/v1/notifications/browser?peek=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/api/v1/notifications/browser", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/api/v1/notifications/browser", "")
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])
}

func TestGetAlertSchema(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/alerts/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	schema := decode[alerting.Schema](t, rec)
	assert.Len(t, schema.Operators, len(alerting.Operators()))
}
