//go:build integration

package monitor_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/monitor"
	"github.com/tphakala/vigil/internal/testutil/containers"
)

var mqttBroker *containers.MosquittoContainer

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	mqttBroker, err = containers.NewMosquittoContainer(ctx)
	if err != nil {
		panic("failed to create MQTT broker: " + err.Error())
	}

	code := m.Run()

	_ = mqttBroker.Terminate(context.Background())
	os.Exit(code)
}

type channelSink struct {
	mu    sync.Mutex
	inner *monitor.Poller
	fired []*alerting.Alert
}

func (s *channelSink) Ingest(source string, snap alerting.Snapshot) []*alerting.Alert {
	fired := s.inner.Ingest(source, snap)
	s.mu.Lock()
	s.fired = append(s.fired, fired...)
	s.mu.Unlock()
	return fired
}

func (s *channelSink) alerts() []*alerting.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*alerting.Alert(nil), s.fired...)
}

func TestMQTTSource_TriggersRule(t *testing.T) {
	mgr := alerting.NewManager(alerting.Options{})
	rule := alerting.NewRule("Line overheating", alerting.SeverityCritical,
		alerting.Condition{Field: "line.temp", Operator: alerting.OpGreaterThan, Value: 80})
	require.True(t, mgr.AddRule(rule))

	sink := &channelSink{inner: monitor.NewPoller(mgr, monitor.PollerOptions{})}
	src := monitor.NewMQTTSource(conf.MQTTSettings{
		Broker:   mqttBroker.BrokerURL(),
		Topic:    "vigil/test/+",
		ClientID: "vigil-integration",
		QoS:      1,
	}, sink, nil)
	require.NoError(t, src.Start())
	t.Cleanup(src.Stop)

	pub, err := mqttBroker.CreateClient("vigil-publisher")
	require.NoError(t, err)
	t.Cleanup(func() { pub.Disconnect(250) })

	// Wait for the subscription to be in place by publishing until the
	// first message is observed.
	require.Eventually(t, func() bool {
		token := pub.Publish("vigil/test/line1", 1, false, `{"line":{"temp":72}}`)
		token.Wait()
		return len(sink.inner.History("mqtt:vigil/test/line1")) > 0
	}, 15*time.Second, 200*time.Millisecond)

	token := pub.Publish("vigil/test/line1", 1, false, `{"line":{"temp":93.5}}`)
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	require.Eventually(t, func() bool { return len(sink.alerts()) == 1 }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, "Line overheating", sink.alerts()[0].RuleName)
	assert.Len(t, mgr.GetActiveAlerts(), 1)
}
