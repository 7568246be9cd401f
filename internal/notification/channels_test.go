package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
)

const hookURL = "https://hooks.example.com/vigil"

func testAlert(id string) *alerting.Alert {
	return &alerting.Alert{
		ID:          id,
		RuleID:      "rule-cpu",
		RuleName:    "High CPU",
		Type:        alerting.TypeSystem,
		Severity:    alerting.SeverityHigh,
		Message:     "System alert: High CPU - system.cpu_percent=90 (system.cpu_percent > 85)",
		Data:        alerting.Snapshot{"system": map[string]any{"cpu_percent": 90}},
		TriggeredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Status:      alerting.StatusTriggered,
	}
}

func TestConsoleChannel_NeverFails(t *testing.T) {
	t.Parallel()

	ch := NewConsoleChannel(logger.NewNop())
	assert.True(t, ch.Enabled())
	assert.Equal(t, alerting.ChannelConsole, ch.Kind())
	require.NoError(t, ch.Send(t.Context(), testAlert("a1")))

	low := testAlert("a2")
	low.Severity = alerting.SeverityLow
	require.NoError(t, NewConsoleChannel(nil).Send(t.Context(), low))
}

func TestSMTPURL(t *testing.T) {
	t.Parallel()

	raw := SMTPURL(conf.EmailSettings{
		Host:       "smtp.example.com",
		Username:   "ops",
		Password:   "p@ss",
		From:       "vigil@example.com",
		To:         []string{"a@example.com", "b@example.com"},
		Encryption: "explicittls",
	})
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "smtp", u.Scheme)
	assert.Equal(t, "smtp.example.com:587", u.Host)
	assert.Equal(t, "ops", u.User.Username())
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss", pass)
	q := u.Query()
	assert.Equal(t, "vigil@example.com", q.Get("fromaddress"))
	assert.Equal(t, "a@example.com,b@example.com", q.Get("toaddresses"))
	assert.Equal(t, "explicittls", q.Get("encryption"))
	assert.Empty(t, q.Get("auth"))

	anon, err := url.Parse(SMTPURL(conf.EmailSettings{Host: "mail", Port: 25, To: []string{"x@y"}}))
	require.NoError(t, err)
	assert.Equal(t, "mail:25", anon.Host)
	assert.Equal(t, "None", anon.Query().Get("auth"))
	assert.Equal(t, "vigil@mail", anon.Query().Get("fromaddress"))
}

func TestEmailChannel_DisabledWhenIncomplete(t *testing.T) {
	t.Parallel()

	for _, s := range []conf.EmailSettings{
		{},
		{Enabled: true, To: []string{"a@b"}},
		{Enabled: true, Host: "smtp.example.com"},
	} {
		ch, err := NewEmailChannel(s)
		require.NoError(t, err)
		assert.False(t, ch.Enabled())
		assert.ErrorIs(t, ch.Send(t.Context(), testAlert("a")), ErrChannelDisabled)
	}
}

func TestEmailChannel_CreatesSender(t *testing.T) {
	t.Parallel()

	ch, err := NewEmailChannel(conf.EmailSettings{Enabled: true, Host: "smtp.example.com", To: []string{"ops@example.com"}})
	require.NoError(t, err)
	assert.True(t, ch.Enabled())
}

type fakeSender struct {
	delay   time.Duration
	errs    []error
	message string
	params  types.Params
}

func (f *fakeSender) Send(message string, params *types.Params) []error {
	time.Sleep(f.delay)
	f.message = message
	f.params = *params
	return f.errs
}

func TestEmailChannel_Send(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{}
	ch := &EmailChannel{enabled: true, sender: fake}
	require.NoError(t, ch.Send(t.Context(), testAlert("mail-1")))
	assert.Equal(t, "[high] High CPU", fake.params["subject"])
	assert.Contains(t, fake.message, "system.cpu_percent=90")
	assert.Contains(t, fake.message, "Alert ID: mail-1")
	assert.Contains(t, fake.message, "Data:\n")
	assert.Contains(t, fake.message, `"cpu_percent": 90`)

	failing := &EmailChannel{enabled: true, sender: &fakeSender{errs: []error{nil, errors.NewStd("relay denied")}}}
	err := failing.Send(t.Context(), testAlert("mail-2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay denied")
	assert.True(t, errors.IsCategory(err, errors.CategoryDelivery))
}

func TestEmailChannel_SendHonorsContext(t *testing.T) {
	t.Parallel()

	ch := &EmailChannel{enabled: true, sender: &fakeSender{delay: 200 * time.Millisecond}}
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := ch.Send(ctx, testAlert("slow"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	// let the detached send finish before goleak runs
	time.Sleep(250 * time.Millisecond)
}

func newMockWebhook(t *testing.T, headers map[string]string) (*WebhookChannel, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	ch := NewWebhookChannel(conf.WebhookSettings{Enabled: true, URL: hookURL, Headers: headers}, &http.Client{Transport: transport})
	return ch, transport
}

func TestWebhookChannel_PostsPayload(t *testing.T) {
	t.Parallel()

	ch, transport := newMockWebhook(t, map[string]string{"X-Token": "secret"})

	var got Payload
	var header http.Header
	transport.RegisterResponder(http.MethodPost, hookURL, func(req *http.Request) (*http.Response, error) {
		header = req.Header.Clone()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &got); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
	})

	require.NoError(t, ch.Send(t.Context(), testAlert("hook-1")))
	assert.Equal(t, 1, transport.GetTotalCallCount())
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "secret", header.Get("X-Token"))

	assert.Equal(t, "hook-1", got.ID)
	assert.Equal(t, "High CPU", got.RuleName)
	assert.Equal(t, alerting.SeverityHigh, got.Severity)
	assert.Equal(t, alerting.TypeSystem, got.Type)
	assert.True(t, got.TriggeredAt.Equal(testAlert("x").TriggeredAt))
	cpu, ok := alerting.LookupField(got.Data, "system.cpu_percent")
	require.True(t, ok)
	assert.InDelta(t, 90.0, cpu, 0)
}

func TestWebhookChannel_Non2xxIsError(t *testing.T) {
	t.Parallel()

	ch, transport := newMockWebhook(t, nil)
	transport.RegisterResponder(http.MethodPost, hookURL, httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	err := ch.Send(t.Context(), testAlert("hook-2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestWebhookChannel_Timeout(t *testing.T) {
	t.Parallel()

	ch, transport := newMockWebhook(t, nil)
	transport.RegisterResponder(http.MethodPost, hookURL, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	err := ch.Send(ctx, testAlert("hook-3"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebhookChannel_Disabled(t *testing.T) {
	t.Parallel()

	ch := NewWebhookChannel(conf.WebhookSettings{Enabled: true}, nil)
	assert.False(t, ch.Enabled())
	assert.ErrorIs(t, ch.Send(t.Context(), testAlert("x")), ErrChannelDisabled)
}

func TestBrowserChannel_QueueAndDrain(t *testing.T) {
	t.Parallel()

	ch := NewBrowserChannel(conf.BrowserSettings{Enabled: true})
	require.NoError(t, ch.Send(t.Context(), testAlert("b1")))
	require.NoError(t, ch.Send(t.Context(), testAlert("b2")))
	require.NoError(t, ch.Send(t.Context(), testAlert("b1")), "same alert replaces its entry")

	pending := ch.Pending()
	require.Len(t, pending, 2)

	drained := ch.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "High CPU", drained[0].RuleName)
	assert.Empty(t, ch.Pending())
}

func TestBrowserChannel_Expiry(t *testing.T) {
	t.Parallel()

	ch := NewBrowserChannel(conf.BrowserSettings{Enabled: true, TTL: conf.Duration(30 * time.Millisecond)})
	require.NoError(t, ch.Send(t.Context(), testAlert("short")))
	assert.Eventually(t, func() bool { return len(ch.Pending()) == 0 }, time.Second, 10*time.Millisecond)

	off := NewBrowserChannel(conf.BrowserSettings{})
	assert.ErrorIs(t, off.Send(t.Context(), testAlert("x")), ErrChannelDisabled)
}
