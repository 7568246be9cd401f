package alerting

import (
	"fmt"
	"strconv"
	"strings"
)

var typeLabels = map[AlertType]string{
	TypePrice:       "Price",
	TypeVolume:      "Volume",
	TypeTechnical:   "Technical",
	TypeSystem:      "System",
	TypeDataQuality: "Data quality",
	TypeThreshold:   "Threshold",
	TypeCustom:      "Alert",
}

// buildMessage renders a human readable description of why rule fired,
// quoting the observed value of every condition field.
func buildMessage(rule *Rule, snapshot Snapshot) string {
	label, ok := typeLabels[rule.Type]
	if !ok {
		label = "Alert"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s alert: %s", label, rule.Name)

	parts := make([]string, 0, len(rule.Conditions))
	for _, c := range rule.Conditions {
		observed, found := LookupField(snapshot, c.Field)
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s (%s)", c.Field, formatValue(observed), c.String()))
	}
	if len(parts) > 0 {
		b.WriteString(" - ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if rule.Description != "" {
		b.WriteString(". ")
		b.WriteString(rule.Description)
	}
	return b.String()
}

func formatValue(v any) string {
	if f, err := toFloat64(v); err == nil {
		if _, isString := v.(string); !isString {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return fmt.Sprint(v)
}
