// Package entities defines the gorm models backing the alert history.
package entities

import "time"

// AlertHistory is one retained alert log entry. The full alert document is
// kept in Payload; the indexed columns support filtering without decoding it.
type AlertHistory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AlertID     string    `gorm:"size:36;not null;uniqueIndex" json:"alert_id"`
	RuleID      string    `gorm:"size:64;not null;index:idx_alert_history_rule_triggered,priority:1" json:"rule_id"`
	RuleName    string    `gorm:"size:255;not null" json:"rule_name"`
	Type        string    `gorm:"size:32;not null" json:"type"`
	Severity    string    `gorm:"size:16;not null;index" json:"severity"`
	TriggeredAt time.Time `gorm:"not null;index:idx_alert_history_rule_triggered,priority:2" json:"triggered_at"`
	Payload     string    `gorm:"type:text;not null" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertHistory) TableName() string {
	return "alert_history"
}
