// Package notification delivers alerts to console, email, webhook and
// browser channels through a bounded worker pool.
package notification

import (
	"context"
	"time"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/errors"
)

// ErrChannelDisabled is returned by channels that are not configured.
var ErrChannelDisabled = errors.NewStd("notification channel disabled")

// Channel delivers a single alert over one medium.
type Channel interface {
	Kind() alerting.Channel
	Enabled() bool
	Send(ctx context.Context, alert *alerting.Alert) error
}

// Payload is the wire representation of an alert shared by the webhook and
// browser channels.
type Payload struct {
	ID          string             `json:"id"`
	RuleID      string             `json:"rule_id"`
	RuleName    string             `json:"rule_name"`
	Severity    alerting.Severity  `json:"severity"`
	Type        alerting.AlertType `json:"type"`
	Message     string             `json:"message"`
	TriggeredAt time.Time          `json:"triggered_at"`
	Data        alerting.Snapshot  `json:"data"`
}

// NewPayload converts alert into its wire form.
func NewPayload(alert *alerting.Alert) Payload {
	return Payload{
		ID:          alert.ID,
		RuleID:      alert.RuleID,
		RuleName:    alert.RuleName,
		Severity:    alert.Severity,
		Type:        alert.Type,
		Message:     alert.Message,
		TriggeredAt: alert.TriggeredAt,
		Data:        alert.Data,
	}
}

// subject is the one-line summary used for email subjects and titles.
func subject(alert *alerting.Alert) string {
	return "[" + string(alert.Severity) + "] " + alert.RuleName
}

func deliveryError(err error, kind alerting.Channel, alertID string) error {
	return errors.New(err).
		Component("notification").
		Category(errors.CategoryDelivery).
		Context("channel", string(kind)).
		Context("alert_id", alertID).
		Build()
}
