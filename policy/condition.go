package policy

import (
	"fmt"
	"strings"
)

// ConditionEvaluator evaluates single predicates against an EvaluationContext.
// It holds no state and never fails: malformed operands and missing fields
// are reported as non-matching results.
type ConditionEvaluator struct{}

// NewConditionEvaluator creates a condition evaluator.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// Evaluate applies cond to ctx.
func (e *ConditionEvaluator) Evaluate(cond Condition, ctx EvaluationContext) ConditionResult {
	actual, present := ctx.Lookup(cond.Field)
	result := ConditionResult{
		Field:         cond.Field,
		Operator:      cond.Operator,
		ExpectedValue: expectedValue(cond),
		ActualValue:   actual,
	}

	if !present && cond.Operator != OpIsNull && cond.Operator != OpIsNotNull {
		result.Reason = fmt.Sprintf("field not found: %s", cond.Field)
		return result
	}

	matched, err := match(cond, actual, present)
	if err != nil {
		result.Reason = fmt.Sprintf("evaluation error on %s %s: %v", cond.Field, cond.Operator, err)
		return result
	}

	result.Matched = matched
	result.Reason = describe(result)
	return result
}

// match dispatches on the operator. Adding an Operator requires a case here.
func match(cond Condition, actual string, present bool) (bool, error) {
	switch cond.Operator {
	case OpIsNull:
		return !present || isBlank(actual), nil
	case OpIsNotNull:
		return present && !isBlank(actual), nil
	case OpEquals:
		return equals(actual, cond.Value), nil
	case OpNotEquals:
		return !equals(actual, cond.Value), nil
	case OpGreaterThan:
		c, err := compareNumbers(actual, cond.Value)
		return c > 0, err
	case OpGreaterThanOrEqual:
		c, err := compareNumbers(actual, cond.Value)
		return c >= 0, err
	case OpLessThan:
		c, err := compareNumbers(actual, cond.Value)
		return c < 0, err
	case OpLessThanOrEqual:
		c, err := compareNumbers(actual, cond.Value)
		return c <= 0, err
	case OpIn:
		return in(actual, cond.Values), nil
	case OpNotIn:
		return !in(actual, cond.Values), nil
	case OpBetween:
		return between(actual, cond.MinValue, cond.MaxValue)
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(cond.Value)), nil
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(actual)), strings.ToLower(strings.TrimSpace(cond.Value))), nil
	case OpIsTrue:
		return parseBool(actual)
	case OpIsFalse:
		b, err := parseBool(actual)
		return !b && err == nil, err
	}
	return false, fmt.Errorf("unsupported operator %q", cond.Operator)
}

// equals compares numerically when both sides parse, otherwise as
// case-insensitive trimmed strings.
func equals(actual, expected string) bool {
	a, errA := parseNumber(actual)
	b, errB := parseNumber(expected)
	if errA == nil && errB == nil {
		return a.Equal(b)
	}
	return equalFold(actual, expected)
}

func compareNumbers(actual, expected string) (int, error) {
	a, err := parseNumber(actual)
	if err != nil {
		return 0, fmt.Errorf("actual value: %w", err)
	}
	b, err := parseNumber(expected)
	if err != nil {
		return 0, fmt.Errorf("expected value: %w", err)
	}
	return a.Cmp(b), nil
}

func in(actual string, candidates []string) bool {
	if a, err := parseNumber(actual); err == nil {
		for _, c := range candidates {
			if b, err := parseNumber(c); err == nil && a.Equal(b) {
				return true
			}
		}
		return false
	}
	for _, c := range candidates {
		if equalFold(actual, c) {
			return true
		}
	}
	return false
}

func between(actual, minValue, maxValue string) (bool, error) {
	a, err := parseNumber(actual)
	if err != nil {
		return false, fmt.Errorf("actual value: %w", err)
	}
	lo, err := parseNumber(minValue)
	if err != nil {
		return false, fmt.Errorf("min value: %w", err)
	}
	hi, err := parseNumber(maxValue)
	if err != nil {
		return false, fmt.Errorf("max value: %w", err)
	}
	return a.Cmp(lo) >= 0 && a.Cmp(hi) <= 0, nil
}

// expectedValue renders the operand(s) of cond for the audit trail.
func expectedValue(cond Condition) string {
	kind, _ := cond.Operator.operands()
	switch kind {
	case operandValues:
		return "[" + strings.Join(cond.Values, ", ") + "]"
	case operandRange:
		return "[" + cond.MinValue + ", " + cond.MaxValue + "]"
	case operandNone:
		return ""
	}
	return cond.Value
}

func describe(r ConditionResult) string {
	outcome := "not matched"
	if r.Matched {
		outcome = "matched"
	}
	expr := fmt.Sprintf("%s (%s) %s", r.Field, r.ActualValue, r.Operator.symbol())
	if r.ExpectedValue != "" {
		expr += " " + r.ExpectedValue
	}
	return outcome + ": " + expr
}
