package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
)

// recordingEngine captures the history each snapshot was evaluated with.
type recordingEngine struct {
	mu       sync.Mutex
	calls    int
	lastSnap alerting.Snapshot
	lastHist []alerting.Snapshot
}

func (e *recordingEngine) CheckAlerts(s alerting.Snapshot, h []alerting.Snapshot) []*alerting.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastSnap = s
	e.lastHist = h
	return nil
}

func (e *recordingEngine) state() (int, []alerting.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.lastHist
}

type staticCollector struct {
	name  string
	snaps []alerting.Snapshot
	err   error
	mu    sync.Mutex
	next  int
}

func (c *staticCollector) Name() string { return c.name }

func (c *staticCollector) Collect(context.Context) (alerting.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	s := c.snaps[c.next%len(c.snaps)]
	c.next++
	return s, nil
}

func cpu(v float64) alerting.Snapshot {
	return alerting.Snapshot{"system": map[string]any{"cpu_percent": v}}
}

func TestPoller_EvaluatesBeforeRecording(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{}
	p := NewPoller(engine, PollerOptions{WindowSize: 2})

	p.Ingest("system", cpu(10))
	_, hist := engine.state()
	assert.Empty(t, hist, "first snapshot has no history")

	p.Ingest("system", cpu(20))
	p.Ingest("system", cpu(30))
	_, hist = engine.state()
	require.Len(t, hist, 2)
	assert.Equal(t, cpu(10), hist[0], "oldest first")
	assert.Equal(t, cpu(20), hist[1])

	assert.Len(t, p.History("system"), 2, "window bound applied")
	assert.Nil(t, p.Ingest("system", nil))
}

func TestPoller_WindowsArePerSource(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{}
	p := NewPoller(engine, PollerOptions{})
	p.Ingest("system", cpu(10))
	p.Ingest("mqtt:plant/line1", alerting.Snapshot{"temp": 40})

	_, hist := engine.state()
	assert.Empty(t, hist)
	assert.Len(t, p.History("system"), 1)
	assert.Len(t, p.History("mqtt:plant/line1"), 1)
	assert.Nil(t, p.History("unknown"))
}

func TestPoller_RunPollsUntilCancelled(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{}
	good := &staticCollector{name: "system", snaps: []alerting.Snapshot{cpu(1), cpu(2)}}
	bad := &staticCollector{name: "broken", err: errors.NewStd("sensor offline")}
	p := NewPoller(engine, PollerOptions{Interval: 10 * time.Millisecond, Logger: logger.NewNop()}, good, bad)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		calls, _ := engine.state()
		return calls >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Nil(t, p.History("broken"))
}

func TestPoller_WithManagerCrossing(t *testing.T) {
	t.Parallel()

	mgr := alerting.NewManager(alerting.Options{})
	rule := alerting.NewRule("CPU crosses 80", alerting.SeverityHigh,
		alerting.Condition{Field: "system.cpu_percent", Operator: alerting.OpCrossesAbove, Value: 80})
	rule.CooldownPeriod = 0
	require.True(t, mgr.AddRule(rule))

	p := NewPoller(mgr, PollerOptions{})
	assert.Empty(t, p.Ingest("system", cpu(90)), "no previous snapshot")
	assert.Empty(t, p.Ingest("system", cpu(70)))
	assert.Len(t, p.Ingest("system", cpu(85)), 1)
	assert.Empty(t, p.Ingest("system", cpu(95)), "already above")
}

func TestSystemCollector_Shape(t *testing.T) {
	t.Parallel()

	c := NewSystemCollector("")
	assert.Equal(t, SourceSystem, c.Name())

	snap, err := c.Collect(t.Context())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	system, ok := snap["system"].(map[string]any)
	require.True(t, ok)
	for key, v := range system {
		assert.Contains(t, []string{"cpu_percent", "memory_percent", "disk_percent", "load_1"}, key)
		assert.IsType(t, float64(0), v)
	}
	if v, ok := alerting.LookupField(snap, alerting.FieldMemoryPercent); ok {
		assert.GreaterOrEqual(t, v.(float64), 0.0)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	t.Parallel()

	snap, err := DecodeSnapshot([]byte(`{"system":{"cpu_percent":91.5,"host":"db1"}}`))
	require.NoError(t, err)
	v, ok := alerting.LookupField(snap, "system.cpu_percent")
	require.True(t, ok)
	assert.Equal(t, json.Number("91.5"), v)

	for _, bad := range []string{`[1,2]`, `null`, `{"a":`, `42`} {
		_, err := DecodeSnapshot([]byte(bad))
		require.Error(t, err, bad)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation), bad)
	}
}

// fakeMessage implements mqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type captureSink struct {
	mu      sync.Mutex
	sources []string
	snaps   []alerting.Snapshot
}

func (s *captureSink) Ingest(source string, snap alerting.Snapshot) []*alerting.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, source)
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func TestMQTTSource_HandleMessage(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	src := NewMQTTSource(conf.MQTTSettings{Broker: "tcp://127.0.0.1:1", Topic: "plant/+", ClientID: "t"}, sink, nil)

	src.handleMessage(nil, fakeMessage{topic: "plant/line1", payload: []byte(`{"temp": 71}`)})
	src.handleMessage(nil, fakeMessage{topic: "plant/line1", payload: []byte(`not json`)})

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "mqtt:plant/line1", sink.sources[0])
	assert.Equal(t, json.Number("71"), sink.snaps[0]["temp"])

	assert.NotPanics(t, src.Stop, "stop without connect")
}
