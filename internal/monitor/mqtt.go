package monitor

import (
	"bytes"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttDisconnectWait = 250 // milliseconds
)

// Sink receives decoded snapshots.
type Sink interface {
	Ingest(source string, snapshot alerting.Snapshot) []*alerting.Alert
}

// MQTTSource subscribes to a topic and forwards JSON object payloads as
// snapshots. The source name of each snapshot is "mqtt:<topic>".
type MQTTSource struct {
	settings conf.MQTTSettings
	sink     Sink
	client   mqtt.Client
	log      logger.Logger
}

func NewMQTTSource(settings conf.MQTTSettings, sink Sink, log logger.Logger) *MQTTSource {
	if log == nil {
		log = logger.NewNop()
	}
	s := &MQTTSource{settings: settings, sink: sink, log: log.Module("mqtt")}

	opts := mqtt.NewClientOptions().
		AddBroker(settings.Broker).
		SetClientID(settings.ClientID).
		SetUsername(settings.Username).
		SetPassword(settings.Password).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn("mqtt connection lost", logger.Error(err))
		})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker. Subscriptions are (re)established on every
// successful connection.
func (s *MQTTSource) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return s.connectError(errors.NewStd("connect timeout"))
	}
	if err := token.Error(); err != nil {
		return s.connectError(err)
	}
	return nil
}

func (s *MQTTSource) connectError(err error) error {
	return errors.New(err).
		Component("monitor").
		Category(errors.CategoryConfiguration).
		Context("operation", "mqtt_connect").
		Context("broker", s.settings.Broker).
		Build()
}

func (s *MQTTSource) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.settings.Topic, byte(s.settings.QoS), s.handleMessage)
	if token.WaitTimeout(mqttConnectTimeout) && token.Error() == nil {
		s.log.Info("subscribed to snapshot topic",
			logger.String("broker", s.settings.Broker),
			logger.String("topic", s.settings.Topic))
		return
	}
	s.log.Error("mqtt subscribe failed",
		logger.String("topic", s.settings.Topic),
		logger.Error(token.Error()))
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	snapshot, err := DecodeSnapshot(msg.Payload())
	if err != nil {
		s.log.Warn("discarding mqtt message",
			logger.String("topic", msg.Topic()),
			logger.Error(err))
		return
	}
	s.sink.Ingest("mqtt:"+msg.Topic(), snapshot)
}

// Stop disconnects from the broker.
func (s *MQTTSource) Stop() {
	if s.client.IsConnected() {
		s.client.Disconnect(mqttDisconnectWait)
	}
}

// DecodeSnapshot parses a JSON object. Numbers are kept as json.Number so
// integers and decimals survive unchanged.
func DecodeSnapshot(payload []byte) (alerting.Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var snapshot alerting.Snapshot
	if err := dec.Decode(&snapshot); err != nil {
		return nil, errors.New(err).
			Component("monitor").
			Category(errors.CategoryValidation).
			Context("operation", "decode_snapshot").
			Build()
	}
	if snapshot == nil {
		return nil, errors.Newf("snapshot payload must be a JSON object").
			Component("monitor").
			Category(errors.CategoryValidation).
			Build()
	}
	return snapshot, nil
}
