package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/monitor"
)

const cpuRules = `rules:
  - name: CPU hot
    type: system
    severity: high
    conditions:
      - field: system.cpu_percent
        operator: ">"
        value: 80
  - name: Broken
    severity: urgent
    conditions:
      - field: x
        operator: ">"
        value: 1
`

func testSettings(t *testing.T, rules string) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	rulesPath := ""
	if rules != "" {
		rulesPath = filepath.Join(dir, "rules.yaml")
		require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o600))
	}
	body := fmt.Sprintf(`server:
  enabled: false
monitor:
  enabled: false
storage:
  driver: file
  path: %q
alerting:
  rules_file: %q
  watch_rules: false
`, filepath.Join(dir, "data"), rulesPath)
	cfgPath := filepath.Join(dir, "vigil.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	s, err := conf.Load(cfgPath)
	require.NoError(t, err)
	return s
}

func TestNew_FileBackendPersistsAcrossRestarts(t *testing.T) {
	t.Parallel()

	s := testSettings(t, cpuRules)
	a, err := New(s, logger.NewNop())
	require.NoError(t, err)

	loaded, err := a.LoadRules()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded, "invalid rule is skipped")

	fired := a.Poller.Ingest(monitor.SourceSystem, alerting.Snapshot{
		"system": map[string]any{"cpu_percent": 95.0},
	})
	require.Len(t, fired, 1)
	assert.Equal(t, "CPU hot", fired[0].RuleName)
	a.Close()
	a.Close()

	reopened, err := New(s, logger.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	recent := reopened.History.GetRecentAlerts(0)
	require.Len(t, recent, 1)
	assert.Equal(t, fired[0].ID, recent[0].ID)
	assert.Equal(t, 1, reopened.History.GetStatistics().BySeverity["high"])
}

func TestRuleConfigs_SeedsDefaultsWhenEmpty(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "")
	configs, err := RuleConfigs(s)
	require.NoError(t, err)
	assert.Len(t, configs, len(alerting.DefaultRules()))

	s.Alerting.SeedDefaults = false
	configs, err = RuleConfigs(s)
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestReloadRules_ReplacesRuleSet(t *testing.T) {
	t.Parallel()

	s := testSettings(t, cpuRules)
	a, err := New(s, logger.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.LoadRules()
	require.NoError(t, err)

	next := "- name: Memory hot\n  severity: medium\n  conditions:\n    - field: system.memory_percent\n      operator: \">=\"\n      value: 90\n"
	require.NoError(t, os.WriteFile(s.Alerting.RulesFile, []byte(next), 0o600))
	a.ReloadRules()

	rules := a.Manager.GetRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "Memory hot", rules[0].Name)

	// A broken file keeps the current rules.
	require.NoError(t, os.WriteFile(s.Alerting.RulesFile, []byte("rules: [name: {"), 0o600))
	a.ReloadRules()
	assert.Len(t, a.Manager.GetRules(), 1)
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "")
	s.Storage.Driver = "cassandra"
	_, err := New(s, logger.NewNop())
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "")
	s.Alerting.CleanupInterval = conf.Duration(10 * time.Millisecond)
	a, err := New(s, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpenHistory_ReadsPersistedAlerts(t *testing.T) {
	t.Parallel()

	s := testSettings(t, cpuRules)
	a, err := New(s, logger.NewNop())
	require.NoError(t, err)
	_, err = a.LoadRules()
	require.NoError(t, err)
	a.Poller.Ingest("mqtt:lab", alerting.Snapshot{"system": map[string]any{"cpu_percent": 99}})
	a.Close()

	store, release, err := OpenHistory(s, logger.NewNop())
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, store.GetStatistics().TotalAlerts)
}
