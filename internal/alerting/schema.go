package alerting

import (
	"slices"
	"strings"
)

// Schema describes the enumerations a rule may use.
type Schema struct {
	Operators  []OperatorSchema `json:"operators"`
	Severities []EnumSchema     `json:"severities"`
	Types      []EnumSchema     `json:"types"`
	Channels   []EnumSchema     `json:"channels"`
	Fields     []FieldSchema    `json:"fields"`
}

// OperatorSchema describes an operator for rule editors.
type OperatorSchema struct {
	Name            string   `json:"name"`
	Label           string   `json:"label"`
	Type            string   `json:"type"` // "number" or "all"
	RequiresHistory bool     `json:"requires_history"`
	Aliases         []string `json:"aliases,omitempty"`
}

// EnumSchema describes one value of a closed enumeration.
type EnumSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Rank  int    `json:"rank"`
}

// FieldSchema describes a well-known snapshot field.
type FieldSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

var operatorLabels = map[Operator]string{
	OpGreaterThan:      "Greater than",
	OpLessThan:         "Less than",
	OpGreaterOrEqual:   "Greater or equal",
	OpLessOrEqual:      "Less or equal",
	OpEqual:            "Equal",
	OpNotEqual:         "Not equal",
	OpCrossesAbove:     "Crosses above",
	OpCrossesBelow:     "Crosses below",
	OpPercentageChange: "Percentage change of at least",
}

var channelLabels = map[Channel]string{
	ChannelConsole: "Console log",
	ChannelEmail:   "Email",
	ChannelWebhook: "Webhook",
	ChannelBrowser: "Browser push",
}

// GetSchema returns the rule schema catalog.
func GetSchema() Schema {
	aliases := make(map[Operator][]string)
	for alias, op := range operatorAliases {
		aliases[op] = append(aliases[op], alias)
	}

	var s Schema
	for _, op := range Operators() {
		typ := "number"
		if !op.Numeric() {
			typ = "all"
		}
		slices.Sort(aliases[op])
		s.Operators = append(s.Operators, OperatorSchema{
			Name:            string(op),
			Label:           operatorLabels[op],
			Type:            typ,
			RequiresHistory: op.RequiresHistory(),
			Aliases:         aliases[op],
		})
	}
	for _, sev := range Severities() {
		s.Severities = append(s.Severities, EnumSchema{Name: string(sev), Label: strings.ToUpper(string(sev[:1])) + string(sev[1:]), Rank: sev.Rank()})
	}
	for _, t := range AlertTypes() {
		s.Types = append(s.Types, EnumSchema{Name: string(t), Label: typeLabels[t]})
	}
	for _, ch := range Channels() {
		s.Channels = append(s.Channels, EnumSchema{Name: string(ch), Label: channelLabels[ch]})
	}
	s.Fields = []FieldSchema{
		{Name: FieldCPUPercent, Label: "CPU Usage", Unit: "%"},
		{Name: FieldMemoryPercent, Label: "Memory Usage", Unit: "%"},
		{Name: FieldDiskPercent, Label: "Disk Usage", Unit: "%"},
		{Name: FieldLoad1, Label: "Load Average (1m)", Unit: ""},
	}
	return s
}
