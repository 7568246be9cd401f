package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

// stubChannel is a configurable Channel for dispatcher tests.
type stubChannel struct {
	kind     alerting.Channel
	disabled bool
	block    chan struct{}
	err      error
	panics   bool
	sent     atomic.Int32
}

func (s *stubChannel) Kind() alerting.Channel { return s.kind }
func (s *stubChannel) Enabled() bool          { return !s.disabled }

func (s *stubChannel) Send(ctx context.Context, _ *alerting.Alert) error {
	if s.panics {
		panic("exploded")
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.sent.Add(1)
	return s.err
}

// attemptLog collects attempts reported by the dispatcher.
type attemptLog struct {
	mu       sync.Mutex
	attempts []alerting.NotificationAttempt
}

func (l *attemptLog) record(a alerting.NotificationAttempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
}

func (l *attemptLog) snapshot() []alerting.NotificationAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]alerting.NotificationAttempt(nil), l.attempts...)
}

func (l *attemptLog) byChannel() map[alerting.Channel]alerting.NotificationAttempt {
	out := make(map[alerting.Channel]alerting.NotificationAttempt)
	for _, a := range l.snapshot() {
		out[a.Channel] = a
	}
	return out
}

func TestDispatcher_FansOutAndRecords(t *testing.T) {
	t.Parallel()

	console := &stubChannel{kind: alerting.ChannelConsole}
	webhook := &stubChannel{kind: alerting.ChannelWebhook, err: errors.NewStd("503 from upstream")}
	email := &stubChannel{kind: alerting.ChannelEmail, disabled: true}
	m := metrics.New()

	d := NewDispatcher(DispatcherOptions{Workers: 2, Logger: logger.NewNop(), Metrics: m}, console, webhook, email)
	defer d.Stop()

	var log attemptLog
	d.Notify(testAlert("fan-1"), []alerting.Channel{
		alerting.ChannelConsole, alerting.ChannelWebhook, alerting.ChannelEmail, alerting.ChannelBrowser,
	}, log.record)

	require.Eventually(t, func() bool { return len(log.snapshot()) == 4 }, 2*time.Second, 5*time.Millisecond)
	got := log.byChannel()

	assert.True(t, got[alerting.ChannelConsole].Success)
	assert.False(t, got[alerting.ChannelWebhook].Success)
	assert.Equal(t, "503 from upstream", got[alerting.ChannelWebhook].Error)
	assert.Equal(t, ErrChannelDisabled.Error(), got[alerting.ChannelEmail].Error)
	assert.Equal(t, ErrMsgNotConfigured, got[alerting.ChannelBrowser].Error)
	assert.EqualValues(t, 1, console.sent.Load())
	assert.EqualValues(t, 0, email.sent.Load())

	assert.Equal(t, 4, testutil.CollectAndCount(m.Registry(), "vigil_notifications_total"))
}

func TestDispatcher_PanickingChannelIsIsolated(t *testing.T) {
	t.Parallel()

	bad := &stubChannel{kind: alerting.ChannelWebhook, panics: true}
	good := &stubChannel{kind: alerting.ChannelConsole}
	d := NewDispatcher(DispatcherOptions{Workers: 1}, bad, good)
	defer d.Stop()

	var log attemptLog
	d.Notify(testAlert("p-1"), []alerting.Channel{alerting.ChannelWebhook, alerting.ChannelConsole}, log.record)
	require.Eventually(t, func() bool { return len(log.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	got := log.byChannel()
	assert.Contains(t, got[alerting.ChannelWebhook].Error, "panicked")
	assert.True(t, got[alerting.ChannelConsole].Success)
}

func TestDispatcher_SendTimeout(t *testing.T) {
	t.Parallel()

	slow := &stubChannel{kind: alerting.ChannelWebhook, block: make(chan struct{})}
	d := NewDispatcher(DispatcherOptions{Workers: 1, SendTimeout: 20 * time.Millisecond}, slow)
	defer d.Stop()

	var log attemptLog
	d.Notify(testAlert("t-1"), []alerting.Channel{alerting.ChannelWebhook}, log.record)
	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	att := log.snapshot()[0]
	assert.False(t, att.Success)
	assert.Contains(t, att.Error, context.DeadlineExceeded.Error())
}

func TestDispatcher_QueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	slow := &stubChannel{kind: alerting.ChannelConsole, block: release}
	d := NewDispatcher(DispatcherOptions{Workers: 1, QueueSize: 1, SendTimeout: 5 * time.Second}, slow)

	var log attemptLog
	channels := []alerting.Channel{alerting.ChannelConsole}

	// first job occupies the worker, second fills the queue
	d.Notify(testAlert("q-1"), channels, log.record)
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	d.Notify(testAlert("q-2"), channels, log.record)
	d.Notify(testAlert("q-3"), channels, log.record)

	attempts := log.snapshot()
	require.Len(t, attempts, 1, "only the rejected alert is recorded so far")
	assert.Equal(t, ErrMsgQueueFull, attempts[0].Error)

	close(release)
	d.Stop()
	assert.Len(t, log.snapshot(), 3, "stop drains queued work")
	assert.EqualValues(t, 2, slow.sent.Load())
}

func TestDispatcher_StopRejectsNewWork(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(DispatcherOptions{}, &stubChannel{kind: alerting.ChannelConsole})
	d.Stop()
	d.Stop()

	var log attemptLog
	d.Notify(testAlert("late"), []alerting.Channel{alerting.ChannelConsole}, log.record)
	attempts := log.snapshot()
	require.Len(t, attempts, 1)
	assert.Equal(t, ErrMsgStopped, attempts[0].Error)

	d.Notify(nil, []alerting.Channel{alerting.ChannelConsole}, log.record)
	d.Notify(testAlert("none"), nil, nil)
	assert.Len(t, log.snapshot(), 1)
}

func TestDispatcher_RateLimit(t *testing.T) {
	t.Parallel()

	ch := &stubChannel{kind: alerting.ChannelConsole}
	d := NewDispatcher(DispatcherOptions{Workers: 4, RateLimit: 20, RateBurst: 1}, ch)

	var log attemptLog
	start := time.Now()
	for i := range 5 {
		d.Notify(testAlert(string(rune('a'+i))), []alerting.Channel{alerting.ChannelConsole}, log.record)
	}
	d.Stop()

	assert.Len(t, log.snapshot(), 5)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "4 extra tokens at 20/s")
}

func TestDispatcher_WithManager(t *testing.T) {
	t.Parallel()

	webhook := &stubChannel{kind: alerting.ChannelWebhook}
	d := NewDispatcher(DispatcherOptions{Workers: 2}, NewConsoleChannel(nil), webhook)
	mgr := alerting.NewManager(alerting.Options{Notifier: d})

	rule := alerting.NewRule("High CPU", alerting.SeverityHigh,
		alerting.Condition{Field: "system.cpu_percent", Operator: alerting.OpGreaterThan, Value: 85})
	rule.Channels = []alerting.Channel{alerting.ChannelConsole, alerting.ChannelWebhook}
	require.True(t, mgr.AddRule(rule))

	fired := mgr.CheckAlerts(alerting.Snapshot{"system": map[string]any{"cpu_percent": 92}}, nil)
	require.Len(t, fired, 1)

	mgr.Close()
	got, ok := mgr.GetAlert(fired[0].ID)
	require.True(t, ok)
	require.Len(t, got.Notifications, 2)
	for _, n := range got.Notifications {
		assert.True(t, n.Success, n.Channel)
	}
}
