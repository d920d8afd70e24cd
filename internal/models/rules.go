package models

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// MatchMode controls how many rules of a group may contribute per target.
type MatchMode string

const (
	MatchAny MatchMode = "any" // first matching rule wins
	MatchAll MatchMode = "all" // every matching rule adds
)

// RuleTarget selects the elements a rule group measures.
// Views is -1 for every view or a view index; Elements is a title or one of
// the category selectors (#all, #allImages, #allTexts, #custom, #customImages, #customTexts).
type RuleTarget struct {
	Views    int    `json:"views" yaml:"views"`
	Elements string `json:"elements,omitempty" yaml:"elements,omitempty"`
}

// UnmarshalJSON defaults Views to every view when omitted.
func (t *RuleTarget) UnmarshalJSON(data []byte) error {
	type plain RuleTarget
	out := plain{Views: -1}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*t = RuleTarget(out)
	return nil
}

// UnmarshalYAML defaults Views to every view when omitted.
func (t *RuleTarget) UnmarshalYAML(node *yaml.Node) error {
	type plain RuleTarget
	out := plain{Views: -1}
	if err := node.Decode(&out); err != nil {
		return err
	}
	*t = RuleTarget(out)
	return nil
}

// PriceRule compares a measured property against a threshold.
// Value is a number, or an object of numbers for compound properties such as imageSize.
type PriceRule struct {
	Operator string  `json:"operator" yaml:"operator"` // "=", "==", "!=", ">", ">=", "<", "<="
	Value    any     `json:"value" yaml:"value"`
	Price    float64 `json:"price" yaml:"price"`
	PriceFn  string  `json:"priceFn,omitempty" yaml:"priceFn,omitempty"`
}

// RuleGroup is a declarative pricing rule set evaluated against the live scene.
type RuleGroup struct {
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	Target   RuleTarget  `json:"target" yaml:"target"`
	Property string      `json:"property" yaml:"property"`
	Type     MatchMode   `json:"type" yaml:"type"`
	Rules    []PriceRule `json:"rules" yaml:"rules"`
}

// UnmarshalJSON targets every view when the group has no target.
func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	type plain RuleGroup
	out := plain{Target: RuleTarget{Views: -1}}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*g = RuleGroup(out)
	return nil
}

// UnmarshalYAML targets every view when the group has no target.
func (g *RuleGroup) UnmarshalYAML(node *yaml.Node) error {
	type plain RuleGroup
	out := plain{Target: RuleTarget{Views: -1}}
	if err := node.Decode(&out); err != nil {
		return err
	}
	*g = RuleGroup(out)
	return nil
}

// PricingRules is the document form of a rules file.
type PricingRules struct {
	Groups []RuleGroup `json:"groups" yaml:"groups"`
}

// PriceBreakdown is the result of a full price computation.
type PriceBreakdown struct {
	Views    []float64 `json:"views"`
	Rules    float64   `json:"rules"`
	Quantity int       `json:"quantity"`
	Total    float64   `json:"total"`
}
