package alerting

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCooldownPeriod is applied when a rule does not set one, in seconds.
	DefaultCooldownPeriod = 300
	// DefaultMaxTriggersPerDay is applied when a rule does not set a cap.
	DefaultMaxTriggersPerDay = 10
)

// ruleNamespace seeds deterministic IDs for rules configured without one, so
// a reloaded rules file keeps its cooldown state.
var ruleNamespace = uuid.MustParse("6f1d8a52-3c0e-4f4b-9a57-2d1c5e0b7a91")

// Rule is a named, typed collection of conditions that fire together.
type Rule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Type        AlertType   `json:"type"`
	Severity    Severity    `json:"severity"`
	Conditions  []Condition `json:"conditions"`
	Enabled     bool        `json:"enabled"`
	Channels    []Channel   `json:"channels"`
	// CooldownPeriod is the minimum number of seconds between two firings.
	CooldownPeriod int `json:"cooldown_period"`
	// MaxTriggersPerDay caps firings per calendar day. Zero or less means unlimited.
	MaxTriggersPerDay int       `json:"max_triggers_per_day"`
	Tags              []string  `json:"tags,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewRule creates an enabled rule with default throttling that notifies the
// console. A random ID is assigned; callers may override any field.
func NewRule(name string, severity Severity, conditions ...Condition) *Rule {
	now := time.Now()
	return &Rule{
		ID:                uuid.NewString(),
		Name:              name,
		Type:              TypeCustom,
		Severity:          severity,
		Conditions:        conditions,
		Enabled:           true,
		Channels:          []Channel{ChannelConsole},
		CooldownPeriod:    DefaultCooldownPeriod,
		MaxTriggersPerDay: DefaultMaxTriggersPerDay,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// RuleIDFromName derives a stable rule ID from a rule name.
func RuleIDFromName(name string) string {
	return uuid.NewSHA1(ruleNamespace, []byte(name)).String()
}

// Cooldown returns the cooldown as a duration.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownPeriod) * time.Second
}

// Evaluate reports whether every condition holds. Disabled rules and rules
// with no conditions never match.
func (r *Rule) Evaluate(snapshot Snapshot, history []Snapshot) bool {
	ok, _ := r.check(snapshot, history)
	return ok
}

func (r *Rule) check(snapshot Snapshot, history []Snapshot) (bool, error) {
	if !r.Enabled {
		return false, nil
	}
	if len(r.Conditions) == 0 {
		return false, ErrNoConditions
	}
	for i := range r.Conditions {
		ok, err := r.Conditions[i].Check(snapshot, history)
		if !ok {
			return false, err
		}
	}
	return true, nil
}

// HasTag reports whether the rule carries tag.
func (r *Rule) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// Clone returns a deep copy safe to hand to callers outside the manager.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	c.Conditions = slices.Clone(r.Conditions)
	c.Channels = slices.Clone(r.Channels)
	c.Tags = slices.Clone(r.Tags)
	return &c
}
