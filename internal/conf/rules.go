package conf

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/errors"
)

type rulesDocument struct {
	Rules []alerting.RuleConfig `yaml:"rules"`
}

// LoadRulesFile reads rule definitions from a YAML (or JSON) file. The file
// holds either a top-level "rules" list or a bare list. An empty file yields
// no rules.
func LoadRulesFile(path string) ([]alerting.RuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rulesError(err, "read_rules_file", path)
	}
	return ParseRules(data, path)
}

// ParseRules decodes rule definitions. source is only used in errors.
func ParseRules(data []byte, source string) ([]alerting.RuleConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, rulesError(err, "parse_rules_file", source)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var rules []alerting.RuleConfig
		if err := doc.Decode(&rules); err != nil {
			return nil, rulesError(err, "decode_rules", source)
		}
		return rules, nil
	}

	var wrapped rulesDocument
	if err := doc.Decode(&wrapped); err != nil {
		return nil, rulesError(err, "decode_rules", source)
	}
	return wrapped.Rules, nil
}

// MarshalRules renders rules in the format LoadRulesFile reads.
func MarshalRules(rules []alerting.RuleConfig) ([]byte, error) {
	return yaml.Marshal(rulesDocument{Rules: rules})
}

func rulesError(err error, op, path string) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("operation", op).
		Context("path", path).
		Build()
}
