package policyadmin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/loanpolicy/policy"
)

const (
	maxRulesPerPolicy    = 200
	maxConditionsPerRule = 100
	maxIdentifierLength  = 100
)

// fieldPattern matches dotted context field names such as applicant.cibilScore.
var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// ValidatePolicy checks that a policy definition can be evaluated.
// Returns an error wrapping policy.ErrInvalidPolicy if validation fails, nil if valid.
func ValidatePolicy(p *policy.Policy) error {
	if err := validatePolicy(p); err != nil {
		return fmt.Errorf("%w: %w", policy.ErrInvalidPolicy, err)
	}
	return nil
}

func validatePolicy(p *policy.Policy) error {
	if p == nil {
		return fmt.Errorf("policy is required")
	}
	if strings.TrimSpace(p.PolicyCode) == "" {
		return fmt.Errorf("policy code is required")
	}
	if len(p.PolicyCode) > maxIdentifierLength {
		return fmt.Errorf("policy code length %d exceeds maximum of %d characters", len(p.PolicyCode), maxIdentifierLength)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("policy %s: name is required", p.PolicyCode)
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("policy %s: invalid category %q", p.PolicyCode, p.Category)
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("policy %s: invalid status %q", p.PolicyCode, p.Status)
	}
	if p.LoanType != nil {
		if _, err := policy.ParseLoanType(string(*p.LoanType)); err != nil {
			return fmt.Errorf("policy %s: %w", p.PolicyCode, err)
		}
	}
	if len(p.Rules) > maxRulesPerPolicy {
		return fmt.Errorf("policy %s contains %d rules, maximum allowed is %d", p.PolicyCode, len(p.Rules), maxRulesPerPolicy)
	}

	for i, rule := range p.Rules {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("policy %s, rule %d (%s): %w", p.PolicyCode, i, rule.Name, err)
		}
	}
	return nil
}

func validateRule(rule policy.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	switch rule.LogicalOperator {
	case policy.LogicalAnd, policy.LogicalOr, "":
	default:
		return fmt.Errorf("invalid logical operator %q (must be AND or OR)", rule.LogicalOperator)
	}
	if len(rule.Conditions) > maxConditionsPerRule {
		return fmt.Errorf("rule contains %d conditions, maximum allowed is %d", len(rule.Conditions), maxConditionsPerRule)
	}

	for i, cond := range rule.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, action := range rule.Actions {
		if !action.Type.IsValid() {
			return fmt.Errorf("action %d: unknown action type %q", i, action.Type)
		}
	}
	return nil
}

// validateCondition checks the field name and that the operands the operator
// reads are present.
func validateCondition(cond policy.Condition) error {
	if len(cond.Field) == 0 {
		return fmt.Errorf("field cannot be empty")
	}
	if len(cond.Field) > maxIdentifierLength {
		return fmt.Errorf("field length %d exceeds maximum of %d characters", len(cond.Field), maxIdentifierLength)
	}
	if !fieldPattern.MatchString(cond.Field) {
		return fmt.Errorf("field %q must be a dotted identifier (e.g. applicant.cibilScore)", cond.Field)
	}

	switch cond.Operator {
	case policy.OpIsNull, policy.OpIsNotNull, policy.OpIsTrue, policy.OpIsFalse:
		return nil
	case policy.OpIn, policy.OpNotIn:
		if len(cond.Values) == 0 {
			return fmt.Errorf("%s on %s requires values", cond.Operator, cond.Field)
		}
		return nil
	case policy.OpBetween:
		if strings.TrimSpace(cond.MinValue) == "" || strings.TrimSpace(cond.MaxValue) == "" {
			return fmt.Errorf("BETWEEN on %s requires minValue and maxValue", cond.Field)
		}
		return nil
	case policy.OpEquals, policy.OpNotEquals,
		policy.OpGreaterThan, policy.OpGreaterThanOrEqual, policy.OpLessThan, policy.OpLessThanOrEqual,
		policy.OpContains, policy.OpStartsWith:
		if cond.Value == "" {
			return fmt.Errorf("%s on %s requires a value", cond.Operator, cond.Field)
		}
		return nil
	}
	return fmt.Errorf("unknown operator %q", cond.Operator)
}
