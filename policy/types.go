package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LoanType identifies the loan product a policy applies to.
type LoanType string

const (
	LoanTypePersonal            LoanType = "PERSONAL_LOAN"
	LoanTypeHome                LoanType = "HOME_LOAN"
	LoanTypeVehicle             LoanType = "VEHICLE_LOAN"
	LoanTypeBusiness            LoanType = "BUSINESS_LOAN"
	LoanTypeEducation           LoanType = "EDUCATION_LOAN"
	LoanTypeGold                LoanType = "GOLD_LOAN"
	LoanTypeLoanAgainstProperty LoanType = "LOAN_AGAINST_PROPERTY"
)

var loanTypes = []LoanType{
	LoanTypePersonal,
	LoanTypeHome,
	LoanTypeVehicle,
	LoanTypeBusiness,
	LoanTypeEducation,
	LoanTypeGold,
	LoanTypeLoanAgainstProperty,
}

// ParseLoanType converts a caller supplied loan type into a LoanType.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseLoanType(s string) (LoanType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for _, lt := range loanTypes {
		if string(lt) == normalized {
			return lt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLoanType, s)
}

// Category groups policies by business purpose.
type Category string

const (
	CategoryEligibility   Category = "ELIGIBILITY"
	CategoryPricing       Category = "PRICING"
	CategoryRisk          Category = "RISK"
	CategoryDocumentation Category = "DOCUMENTATION"
	CategoryCompliance    Category = "COMPLIANCE"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryEligibility, CategoryPricing, CategoryRisk, CategoryDocumentation, CategoryCompliance:
		return true
	}
	return false
}

// Status is the lifecycle state of a policy. Only ACTIVE policies are evaluated.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusActive  Status = "ACTIVE"
	StatusRetired Status = "RETIRED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusRetired:
		return true
	}
	return false
}

// LogicalOperator combines the condition results of a rule.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Condition is a single field/operator/value predicate.
// Depending on the operator, Value, Values or MinValue/MaxValue is used.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values   []string `json:"values,omitempty" yaml:"values,omitempty"`
	MinValue string   `json:"minValue,omitempty" yaml:"minValue,omitempty"`
	MaxValue string   `json:"maxValue,omitempty" yaml:"maxValue,omitempty"`
}

// Action is an effect emitted when the owning rule matches.
type Action struct {
	Type        ActionType        `json:"type" yaml:"type"`
	Parameters  map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
}

// Rule is a named AND/OR combination of conditions plus the actions to trigger
// when it matches. Lower Priority values take precedence.
type Rule struct {
	Name            string          `json:"name" yaml:"name"`
	LogicalOperator LogicalOperator `json:"logicalOperator" yaml:"logicalOperator"`
	Conditions      []Condition     `json:"conditions" yaml:"conditions"`
	Actions         []Action        `json:"actions" yaml:"actions"`
	Priority        int             `json:"priority" yaml:"priority"`
	Enabled         bool            `json:"enabled" yaml:"enabled"`
}

// Policy is the aggregate root: a bundle of rules for a category and loan type.
// A nil LoanType means the policy applies to every loan type.
type Policy struct {
	ID         string    `json:"id"`
	PolicyCode string    `json:"policyCode"`
	Name       string    `json:"name"`
	Category   Category  `json:"category"`
	LoanType   *LoanType `json:"loanType,omitempty"`
	Status     Status    `json:"status"`
	Priority   int       `json:"priority"`
	Version    int       `json:"version"`
	Rules      []Rule    `json:"rules"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AppliesTo reports whether the policy covers the given loan type.
func (p *Policy) AppliesTo(lt LoanType) bool {
	return p.LoanType == nil || *p.LoanType == lt
}

// ConditionResult is the audit record of one condition evaluation.
type ConditionResult struct {
	Field         string   `json:"field"`
	Operator      Operator `json:"operator"`
	ExpectedValue string   `json:"expectedValue"`
	ActualValue   string   `json:"actualValue"`
	Matched       bool     `json:"matched"`
	Reason        string   `json:"reason"`
}

// RuleMatchResult is the audit record of one rule evaluation.
type RuleMatchResult struct {
	RuleName         string             `json:"ruleName"`
	Matched          bool               `json:"matched"`
	LogicalOperator  LogicalOperator    `json:"logicalOperator"`
	ConditionResults []ConditionResult  `json:"conditionResults"`
	TriggeredActions []*TriggeredAction `json:"triggeredActions"`
}

// TriggeredAction is an action produced by a matched rule, tagged with enough
// provenance to explain why it fired.
type TriggeredAction struct {
	ActionType       ActionType        `json:"actionType"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	Description      string            `json:"description,omitempty"`
	SourcePolicyCode string            `json:"sourcePolicyCode"`
	SourceRuleName   string            `json:"sourceRuleName"`
	Priority         int               `json:"priority"`
}

// Decision is the overall outcome token of an evaluation.
type Decision string

const (
	DecisionApproved   Decision = "APPROVED"
	DecisionRejected   Decision = "REJECTED"
	DecisionReferred   Decision = "REFERRED"
	DecisionNoDecision Decision = "NO_DECISION"
	DecisionNoMatch    Decision = "NO_MATCH"
	DecisionError      Decision = "ERROR"
)

// Clone returns a deep copy of p so stored snapshots cannot be mutated by callers.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	cp := *p
	if p.LoanType != nil {
		lt := *p.LoanType
		cp.LoanType = &lt
	}
	cp.Rules = make([]Rule, len(p.Rules))
	for i, r := range p.Rules {
		rc := r
		rc.Conditions = make([]Condition, len(r.Conditions))
		for j, c := range r.Conditions {
			cc := c
			cc.Values = append([]string(nil), c.Values...)
			rc.Conditions[j] = cc
		}
		rc.Actions = make([]Action, len(r.Actions))
		for j, a := range r.Actions {
			ac := a
			ac.Parameters = copyParams(a.Parameters)
			rc.Actions[j] = ac
		}
		cp.Rules[i] = rc
	}
	return &cp
}

// sortPolicies orders policies by ascending priority, then policy code.
func sortPolicies(policies []*Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority < policies[j].Priority
		}
		return policies[i].PolicyCode < policies[j].PolicyCode
	})
}
