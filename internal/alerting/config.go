package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/vigil/internal/errors"
)

// ConditionConfig is the file/API representation of a Condition.
type ConditionConfig struct {
	Field        string `json:"field" yaml:"field" mapstructure:"field"`
	Operator     string `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value        any    `json:"value" yaml:"value" mapstructure:"value"`
	CompareField string `json:"comparison_field,omitempty" yaml:"comparison_field,omitempty" mapstructure:"comparison_field"`
	Timeframe    string `json:"timeframe,omitempty" yaml:"timeframe,omitempty" mapstructure:"timeframe"`
}

// RuleConfig is the file/API representation of a Rule. Enum fields are plain
// strings so invalid input can be reported per rule instead of failing decode.
type RuleConfig struct {
	ID                string            `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Name              string            `json:"name" yaml:"name" mapstructure:"name"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Type              string            `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Severity          string            `json:"severity" yaml:"severity" mapstructure:"severity"`
	Conditions        []ConditionConfig `json:"conditions" yaml:"conditions" mapstructure:"conditions"`
	Enabled           *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Channels          []string          `json:"channels,omitempty" yaml:"channels,omitempty" mapstructure:"channels"`
	CooldownPeriod    *int              `json:"cooldown_period,omitempty" yaml:"cooldown_period,omitempty" mapstructure:"cooldown_period"`
	MaxTriggersPerDay *int              `json:"max_triggers_per_day,omitempty" yaml:"max_triggers_per_day,omitempty" mapstructure:"max_triggers_per_day"`
	Tags              []string          `json:"tags,omitempty" yaml:"tags,omitempty" mapstructure:"tags"`
}

func configError(rule string, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("alerting").
		Category(errors.CategoryConfiguration).
		Context("operation", "parse_rule").
		Context("rule", rule).
		Build()
}

// ParseRule validates cfg and builds a Rule. Unknown enum values, missing
// names, empty condition lists and non-numeric literals for numeric
// operators are rejected.
func ParseRule(cfg RuleConfig) (*Rule, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, configError(cfg.ID, "rule name is required")
	}

	severity, err := ParseSeverity(cfg.Severity)
	if err != nil {
		return nil, configError(name, "rule %q: %w", name, err)
	}

	alertType := TypeCustom
	if cfg.Type != "" {
		if alertType, err = ParseAlertType(cfg.Type); err != nil {
			return nil, configError(name, "rule %q: %w", name, err)
		}
	}

	if len(cfg.Conditions) == 0 {
		return nil, configError(name, "rule %q: %w", name, ErrNoConditions)
	}
	conditions := make([]Condition, 0, len(cfg.Conditions))
	for i, cc := range cfg.Conditions {
		cond, err := parseCondition(cc)
		if err != nil {
			return nil, configError(name, "rule %q condition %d: %w", name, i, err)
		}
		conditions = append(conditions, cond)
	}

	channels := []Channel{ChannelConsole}
	if len(cfg.Channels) > 0 {
		channels = make([]Channel, 0, len(cfg.Channels))
		for _, raw := range cfg.Channels {
			ch, err := ParseChannel(raw)
			if err != nil {
				return nil, configError(name, "rule %q: %w", name, err)
			}
			channels = append(channels, ch)
		}
	}

	rule := NewRule(name, severity, conditions...)
	rule.ID = cfg.ID
	if rule.ID == "" {
		rule.ID = RuleIDFromName(name)
	}
	rule.Description = cfg.Description
	rule.Type = alertType
	rule.Channels = channels
	rule.Tags = cfg.Tags
	if cfg.Enabled != nil {
		rule.Enabled = *cfg.Enabled
	}
	if cfg.CooldownPeriod != nil {
		if *cfg.CooldownPeriod < 0 {
			return nil, configError(name, "rule %q: cooldown_period must not be negative", name)
		}
		rule.CooldownPeriod = *cfg.CooldownPeriod
	}
	if cfg.MaxTriggersPerDay != nil {
		rule.MaxTriggersPerDay = *cfg.MaxTriggersPerDay
	}
	return rule, nil
}

func parseCondition(cc ConditionConfig) (Condition, error) {
	if strings.TrimSpace(cc.Field) == "" {
		return Condition{}, errors.NewStd("field is required")
	}
	op, err := ParseOperator(cc.Operator)
	if err != nil {
		return Condition{}, err
	}
	if cc.CompareField == "" {
		if cc.Value == nil {
			return Condition{}, errors.NewStd("value or comparison_field is required")
		}
		if op.Numeric() && !isNumeric(cc.Value) {
			return Condition{}, fmt.Errorf("operator %s requires a numeric value, got %v: %w", op, cc.Value, ErrNotNumeric)
		}
	}
	return Condition{
		Field:        strings.TrimSpace(cc.Field),
		Operator:     op,
		Value:        cc.Value,
		CompareField: strings.TrimSpace(cc.CompareField),
		Timeframe:    cc.Timeframe,
	}, nil
}

// ToConfig converts a Rule back into its configuration form.
func (r *Rule) ToConfig() RuleConfig {
	enabled := r.Enabled
	cooldown := r.CooldownPeriod
	maxPerDay := r.MaxTriggersPerDay

	conds := make([]ConditionConfig, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		conds = append(conds, ConditionConfig{
			Field:        c.Field,
			Operator:     string(c.Operator),
			Value:        c.Value,
			CompareField: c.CompareField,
			Timeframe:    c.Timeframe,
		})
	}
	channels := make([]string, 0, len(r.Channels))
	for _, ch := range r.Channels {
		channels = append(channels, string(ch))
	}
	return RuleConfig{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Type:              string(r.Type),
		Severity:          string(r.Severity),
		Conditions:        conds,
		Enabled:           &enabled,
		Channels:          channels,
		CooldownPeriod:    &cooldown,
		MaxTriggersPerDay: &maxPerDay,
		Tags:              r.Tags,
	}
}

// touch stamps the rule as modified.
func (r *Rule) touch(now time.Time) {
	r.UpdatedAt = now
}
