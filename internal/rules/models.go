package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RuleType selects which subsystem a rule feeds.
type RuleType string

const (
	TypeProviderSelection RuleType = "PROVIDER_SELECTION"
	TypeMarginAdjustment  RuleType = "MARGIN_ADJUSTMENT"
)

// ConditionOperator combines criteria within a group.
type ConditionOperator string

const (
	OpAnd ConditionOperator = "AND"
	OpOr  ConditionOperator = "OR"
)

// CriterionOperator compares one context field against rule values.
type CriterionOperator string

const (
	CritEquals       CriterionOperator = "EQUALS"
	CritNotEquals    CriterionOperator = "NOT_EQUALS"
	CritIn           CriterionOperator = "IN"
	CritNotIn        CriterionOperator = "NOT_IN"
	CritGT           CriterionOperator = "GT"
	CritGE           CriterionOperator = "GE"
	CritLT           CriterionOperator = "LT"
	CritLE           CriterionOperator = "LE"
	CritBetween      CriterionOperator = "BETWEEN"
	CritContains     CriterionOperator = "CONTAINS"
	CritStartsWith   CriterionOperator = "STARTS_WITH"
	CritEndsWith     CriterionOperator = "ENDS_WITH"
	CritOutsideHours CriterionOperator = "OUTSIDE_HOURS"
)

var validCriterionOps = map[CriterionOperator]bool{
	CritEquals: true, CritNotEquals: true, CritIn: true, CritNotIn: true,
	CritGT: true, CritGE: true, CritLT: true, CritLE: true,
	CritBetween: true, CritContains: true, CritStartsWith: true,
	CritEndsWith: true, CritOutsideHours: true,
}

// Criterion is either a leaf comparison or a nested condition group.
// Exactly one of the two shapes is populated.
type Criterion struct {
	// Leaf form
	Field    string            `json:"field,omitempty"`
	Operator CriterionOperator `json:"operator,omitempty"`
	Value    any               `json:"value,omitempty"`
	Values   []any             `json:"values,omitempty"`

	// Group form
	Group *Conditions `json:"-"`
}

// Conditions combines criteria with AND/OR.
type Conditions struct {
	Operator ConditionOperator `json:"operator"`
	Criteria []Criterion       `json:"criteria"`
}

// UnmarshalJSON decodes a criterion, detecting the nested-group shape by
// the presence of a "criteria" key.
func (c *Criterion) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["criteria"]; ok {
		var group Conditions
		if err := json.Unmarshal(data, &group); err != nil {
			return err
		}
		c.Group = &group
		return nil
	}

	type leaf Criterion
	var l leaf
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	*c = Criterion(l)
	return nil
}

// MarshalJSON renders the group form transparently.
func (c Criterion) MarshalJSON() ([]byte, error) {
	if c.Group != nil {
		return json.Marshal(c.Group)
	}
	type leaf Criterion
	return json.Marshal(leaf(c))
}

// ProviderSelectionAction injects provider preferences into routing.
type ProviderSelectionAction struct {
	PreferredProviders       []string `json:"preferred_providers,omitempty"`
	ExcludedProviders        []string `json:"excluded_providers,omitempty"`
	RoutingObjectiveOverride string   `json:"routing_objective_override,omitempty"`
	ForceProvider            string   `json:"force_provider,omitempty"`
}

// MarginAdjustmentAction overrides components of the pricing composition.
type MarginAdjustmentAction struct {
	BaseMarginOverride       *float64 `json:"base_margin_override,omitempty"`
	AdditionalMarginBps      float64  `json:"additional_margin_bps,omitempty"`
	TierAdjustmentMultiplier *float64 `json:"tier_adjustment_multiplier,omitempty"`
	MinMarginBps             *float64 `json:"min_margin_bps,omitempty"`
	MaxMarginBps             *float64 `json:"max_margin_bps,omitempty"`
}

// Metadata carries free-form rule annotations.
type Metadata struct {
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Rule is one declarative routing or pricing rule. Actions is a tagged
// variant: exactly one of Provider/Margin is set, selected by RuleType.
type Rule struct {
	RuleID     string     `json:"rule_id"`
	RuleName   string     `json:"rule_name"`
	RuleType   RuleType   `json:"rule_type"`
	Priority   int        `json:"priority"`
	Enabled    bool       `json:"enabled"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Conditions Conditions `json:"conditions"`
	Metadata   Metadata   `json:"metadata,omitempty"`

	Provider *ProviderSelectionAction `json:"-"`
	Margin   *MarginAdjustmentAction  `json:"-"`
}

type ruleAlias struct {
	RuleID     string          `json:"rule_id"`
	RuleName   string          `json:"rule_name"`
	RuleType   RuleType        `json:"rule_type"`
	Priority   int             `json:"priority"`
	Enabled    bool            `json:"enabled"`
	ValidFrom  time.Time       `json:"valid_from"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	Conditions Conditions      `json:"conditions"`
	Actions    json.RawMessage `json:"actions"`
	Metadata   Metadata        `json:"metadata,omitempty"`
}

// ErrInvalidRule marks rules rejected at load time.
var ErrInvalidRule = errors.New("invalid rule")

// UnmarshalJSON decodes a rule, strictly decoding the action object for
// the declared rule type. Unknown action fields or types are rejected at
// load, never tolerated at call sites.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var a ruleAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	r.RuleID = a.RuleID
	r.RuleName = a.RuleName
	r.RuleType = a.RuleType
	r.Priority = a.Priority
	r.Enabled = a.Enabled
	r.ValidFrom = a.ValidFrom
	r.ValidUntil = a.ValidUntil
	r.Conditions = a.Conditions
	r.Metadata = a.Metadata

	if len(a.Actions) == 0 {
		return fmt.Errorf("%w: rule %s has no actions", ErrInvalidRule, a.RuleID)
	}

	switch a.RuleType {
	case TypeProviderSelection:
		var act ProviderSelectionAction
		if err := strictDecode(a.Actions, &act); err != nil {
			return fmt.Errorf("%w: rule %s actions: %v", ErrInvalidRule, a.RuleID, err)
		}
		r.Provider = &act
	case TypeMarginAdjustment:
		var act MarginAdjustmentAction
		if err := strictDecode(a.Actions, &act); err != nil {
			return fmt.Errorf("%w: rule %s actions: %v", ErrInvalidRule, a.RuleID, err)
		}
		r.Margin = &act
	default:
		return fmt.Errorf("%w: rule %s has unknown type %q", ErrInvalidRule, a.RuleID, a.RuleType)
	}

	return r.validate()
}

// MarshalJSON re-tags the action variant into the wire shape.
func (r Rule) MarshalJSON() ([]byte, error) {
	var actions any
	switch {
	case r.Provider != nil:
		actions = r.Provider
	case r.Margin != nil:
		actions = r.Margin
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ruleAlias{
		RuleID:     r.RuleID,
		RuleName:   r.RuleName,
		RuleType:   r.RuleType,
		Priority:   r.Priority,
		Enabled:    r.Enabled,
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
		Conditions: r.Conditions,
		Actions:    raw,
		Metadata:   r.Metadata,
	})
}

func (r *Rule) validate() error {
	if r.RuleID == "" {
		return fmt.Errorf("%w: missing rule_id", ErrInvalidRule)
	}
	if r.ValidUntil != nil && !r.ValidFrom.Before(*r.ValidUntil) {
		return fmt.Errorf("%w: rule %s validity window is empty", ErrInvalidRule, r.RuleID)
	}
	return validateConditions(r.Conditions, r.RuleID)
}

func validateConditions(c Conditions, ruleID string) error {
	if c.Operator != OpAnd && c.Operator != OpOr {
		return fmt.Errorf("%w: rule %s has unknown condition operator %q", ErrInvalidRule, ruleID, c.Operator)
	}
	if len(c.Criteria) == 0 {
		return fmt.Errorf("%w: rule %s has an empty criteria list", ErrInvalidRule, ruleID)
	}
	for _, crit := range c.Criteria {
		if crit.Group != nil {
			if err := validateConditions(*crit.Group, ruleID); err != nil {
				return err
			}
			continue
		}
		if crit.Field == "" {
			return fmt.Errorf("%w: rule %s has a criterion without a field", ErrInvalidRule, ruleID)
		}
		if !validCriterionOps[crit.Operator] {
			return fmt.Errorf("%w: rule %s uses unknown operator %q", ErrInvalidRule, ruleID, crit.Operator)
		}
	}
	return nil
}

func strictDecode(data []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// ApplicableAt reports whether the rule is enabled and inside its
// validity window at ts.
func (r Rule) ApplicableAt(ts time.Time) bool {
	if !r.Enabled {
		return false
	}
	if ts.Before(r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && ts.After(*r.ValidUntil) {
		return false
	}
	return true
}
