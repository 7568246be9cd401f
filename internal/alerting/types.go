// Package alerting evaluates rules against metric snapshots and tracks the
// resulting alert instances through their acknowledge/snooze/resolve lifecycle.
package alerting

import (
	"fmt"
	"strings"

	"github.com/tphakala/vigil/internal/errors"
)

// Errors returned by the Parse functions. ParseRule wraps them into
// configuration errors.
var (
	ErrUnknownSeverity  = errors.NewStd("unknown severity")
	ErrUnknownAlertType = errors.NewStd("unknown alert type")
	ErrUnknownChannel   = errors.NewStd("unknown notification channel")
)

// Snapshot is a keyed metric payload. Values may be nested mappings that are
// addressed with dot-separated paths such as "system.cpu_percent".
type Snapshot = map[string]any

// Severity is an ordered alert severity.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityLow       Severity = "low"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

var severityRank = map[Severity]int{
	SeverityInfo:      0,
	SeverityLow:       1,
	SeverityMedium:    2,
	SeverityHigh:      3,
	SeverityCritical:  4,
	SeverityEmergency: 5,
}

// Severities lists all severities from least to most severe.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical, SeverityEmergency}
}

// Rank returns the position of s in the severity order, or -1 if unknown.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

func (s Severity) Valid() bool { return s.Rank() >= 0 }

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.Rank() >= other.Rank() }

// ParseSeverity converts a case-insensitive name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownSeverity, s)
	}
	return sev, nil
}

// AlertType categorizes what a rule watches.
type AlertType string

const (
	TypePrice       AlertType = "price"
	TypeVolume      AlertType = "volume"
	TypeTechnical   AlertType = "technical"
	TypeSystem      AlertType = "system"
	TypeDataQuality AlertType = "data_quality"
	TypeThreshold   AlertType = "threshold"
	TypeCustom      AlertType = "custom"
)

// AlertTypes lists every known alert type.
func AlertTypes() []AlertType {
	return []AlertType{TypePrice, TypeVolume, TypeTechnical, TypeSystem, TypeDataQuality, TypeThreshold, TypeCustom}
}

func (t AlertType) Valid() bool {
	switch t {
	case TypePrice, TypeVolume, TypeTechnical, TypeSystem, TypeDataQuality, TypeThreshold, TypeCustom:
		return true
	}
	return false
}

// ParseAlertType converts a case-insensitive name into an AlertType.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownAlertType, s)
	}
	return t, nil
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelConsole Channel = "console"
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelBrowser Channel = "browser"
)

// Channels lists every known channel.
func Channels() []Channel {
	return []Channel{ChannelConsole, ChannelEmail, ChannelWebhook, ChannelBrowser}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelConsole, ChannelEmail, ChannelWebhook, ChannelBrowser:
		return true
	}
	return false
}

// ParseChannel converts a case-insensitive name into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownChannel, s)
	}
	return c, nil
}

// Status is the lifecycle state of an alert instance.
type Status string

const (
	StatusTriggered    Status = "triggered"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusSnoozed      Status = "snoozed"
)
