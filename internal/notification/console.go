package notification

import (
	"context"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/logger"
)

// ConsoleChannel writes alerts to the log. It never fails.
type ConsoleChannel struct {
	log logger.Logger
}

func NewConsoleChannel(log logger.Logger) *ConsoleChannel {
	if log == nil {
		log = logger.NewNop()
	}
	return &ConsoleChannel{log: log.Module("console")}
}

func (c *ConsoleChannel) Kind() alerting.Channel { return alerting.ChannelConsole }

func (c *ConsoleChannel) Enabled() bool { return true }

func (c *ConsoleChannel) Send(_ context.Context, alert *alerting.Alert) error {
	fields := []logger.Field{
		logger.String("alert_id", alert.ID),
		logger.String("rule_name", alert.RuleName),
		logger.String("severity", string(alert.Severity)),
		logger.String("type", string(alert.Type)),
		logger.Time("triggered_at", alert.TriggeredAt),
	}
	if alert.Severity.AtLeast(alerting.SeverityHigh) {
		c.log.Warn(alert.Message, fields...)
	} else {
		c.log.Info(alert.Message, fields...)
	}
	return nil
}
