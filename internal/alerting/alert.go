package alerting

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// NotificationAttempt records one delivery attempt on one channel.
type NotificationAttempt struct {
	Channel Channel   `json:"channel"`
	SentAt  time.Time `json:"sent_at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Alert is a single firing of a rule.
type Alert struct {
	ID              string                `json:"id"`
	RuleID          string                `json:"rule_id"`
	RuleName        string                `json:"rule_name"`
	Type            AlertType             `json:"type"`
	Severity        Severity              `json:"severity"`
	Message         string                `json:"message"`
	Data            Snapshot              `json:"data"`
	TriggeredAt     time.Time             `json:"triggered_at"`
	Status          Status                `json:"status"`
	AcknowledgedAt  *time.Time            `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string                `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time            `json:"resolved_at,omitempty"`
	ResolvedBy      string                `json:"resolved_by,omitempty"`
	SnoozedUntil    *time.Time            `json:"snoozed_until,omitempty"`
	ResolutionNotes string                `json:"resolution_notes,omitempty"`
	Notifications   []NotificationAttempt `json:"notifications_sent"`
}

func newAlert(rule *Rule, message string, data Snapshot, now time.Time) *Alert {
	return &Alert{
		ID:            uuid.NewString(),
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Type:          rule.Type,
		Severity:      rule.Severity,
		Message:       message,
		Data:          CloneSnapshot(data),
		TriggeredAt:   now,
		Status:        StatusTriggered,
		Notifications: []NotificationAttempt{},
	}
}

// IsSnoozed reports whether the alert is snoozed and the snooze has not expired.
func (a *Alert) IsSnoozed(now time.Time) bool {
	return a.Status == StatusSnoozed && a.SnoozedUntil != nil && now.Before(*a.SnoozedUntil)
}

// IsActive reports whether the alert still needs attention at now.
func (a *Alert) IsActive(now time.Time) bool {
	switch a.Status {
	case StatusTriggered, StatusAcknowledged:
		return true
	case StatusSnoozed:
		return !a.IsSnoozed(now)
	}
	return false
}

// expireSnooze returns a snoozed alert whose deadline has passed to
// TRIGGERED. It reports whether the alert changed.
func (a *Alert) expireSnooze(now time.Time) bool {
	if a.Status != StatusSnoozed || a.IsSnoozed(now) {
		return false
	}
	a.Status = StatusTriggered
	a.SnoozedUntil = nil
	return true
}

// Acknowledge moves a TRIGGERED alert to ACKNOWLEDGED.
func (a *Alert) Acknowledge(actor, notes string, now time.Time) bool {
	a.expireSnooze(now)
	if a.Status != StatusTriggered {
		return false
	}
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = actor
	if notes != "" {
		a.ResolutionNotes = notes
	}
	return true
}

// Resolve closes a TRIGGERED or ACKNOWLEDGED alert.
func (a *Alert) Resolve(actor, notes string, now time.Time) bool {
	a.expireSnooze(now)
	if a.Status != StatusTriggered && a.Status != StatusAcknowledged {
		return false
	}
	a.Status = StatusResolved
	a.ResolvedAt = &now
	a.ResolvedBy = actor
	if notes != "" {
		a.ResolutionNotes = notes
	}
	return true
}

// Snooze hides a TRIGGERED or ACKNOWLEDGED alert for d.
func (a *Alert) Snooze(d time.Duration, now time.Time) bool {
	a.expireSnooze(now)
	if d <= 0 {
		return false
	}
	if a.Status != StatusTriggered && a.Status != StatusAcknowledged {
		return false
	}
	until := now.Add(d)
	a.Status = StatusSnoozed
	a.SnoozedUntil = &until
	return true
}

// Clone returns a deep copy, including nested maps and slices inside Data.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = CloneSnapshot(a.Data)
	c.Notifications = slices.Clone(a.Notifications)
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	c.SnoozedUntil = cloneTime(a.SnoozedUntil)
	return &c
}

// CloneSnapshot copies s recursively through nested maps and slices.
// Scalar leaves are shared.
func CloneSnapshot(s Snapshot) Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneSnapshot(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
