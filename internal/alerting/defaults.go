package alerting

// Field paths produced by the built-in system collector.
const (
	FieldCPUPercent    = "system.cpu_percent"
	FieldMemoryPercent = "system.memory_percent"
	FieldDiskPercent   = "system.disk_percent"
	FieldLoad1         = "system.load_1"
)

func intPtr(v int) *int { return &v }

// DefaultRules returns the built-in system rules seeded when no rules are
// configured.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Name:        "High CPU usage",
			Description: "CPU usage is above 85%",
			Type:        string(TypeSystem),
			Severity:    string(SeverityHigh),
			Conditions: []ConditionConfig{
				{Field: FieldCPUPercent, Operator: string(OpGreaterThan), Value: 85},
			},
			Channels:          []string{string(ChannelConsole)},
			CooldownPeriod:    intPtr(600),
			MaxTriggersPerDay: intPtr(10),
			Tags:              []string{"builtin", "system"},
		},
		{
			Name:        "High memory usage",
			Description: "Memory usage is above 90%",
			Type:        string(TypeSystem),
			Severity:    string(SeverityHigh),
			Conditions: []ConditionConfig{
				{Field: FieldMemoryPercent, Operator: string(OpGreaterThan), Value: 90},
			},
			Channels:          []string{string(ChannelConsole)},
			CooldownPeriod:    intPtr(600),
			MaxTriggersPerDay: intPtr(10),
			Tags:              []string{"builtin", "system"},
		},
		{
			Name:        "Disk almost full",
			Description: "Disk usage is above 95%",
			Type:        string(TypeSystem),
			Severity:    string(SeverityCritical),
			Conditions: []ConditionConfig{
				{Field: FieldDiskPercent, Operator: string(OpGreaterOrEqual), Value: 95},
			},
			Channels:          []string{string(ChannelConsole)},
			CooldownPeriod:    intPtr(3600),
			MaxTriggersPerDay: intPtr(5),
			Tags:              []string{"builtin", "system"},
		},
		{
			Name:        "CPU spike",
			Description: "CPU usage jumped by 50% or more since the previous sample",
			Type:        string(TypeSystem),
			Severity:    string(SeverityMedium),
			Conditions: []ConditionConfig{
				{Field: FieldCPUPercent, Operator: string(OpPercentageChange), Value: 50, Timeframe: "1 interval"},
			},
			Channels:          []string{string(ChannelConsole)},
			CooldownPeriod:    intPtr(900),
			MaxTriggersPerDay: intPtr(10),
			Tags:              []string{"builtin", "system"},
		},
	}
}
