package bot

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// RuleSpec is a rule as written by an owner, where an omitted active flag
// means enabled.
type RuleSpec struct {
	Rule   `yaml:",inline"`
	Active *bool `json:"active,omitempty" yaml:"active,omitempty"`
}

// ToRule returns the rule with the active default applied.
func (s RuleSpec) ToRule() Rule {
	r := s.Rule
	r.Active = s.Active == nil || *s.Active
	return r
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// ParseRules reads a YAML rules file:
//
//	rules:
//	  - name: pricing
//	    trigger: price
//	    cooldown_seconds: 300
//	    response:
//	      text: "Hi {{name}}, our prices are..."
//
// Every rule is validated; the first invalid one fails the whole file.
func ParseRules(r io.Reader) ([]Rule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("rules file is empty")
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("rules file has no rules")
	}

	out := make([]Rule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		rule := spec.ToRule()
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, rule.Name, err)
		}
		out = append(out, rule)
	}
	return out, nil
}
