package policy

import "testing"

func approvalRule() Rule {
	return Rule{
		Name:            "prime-salaried",
		LogicalOperator: LogicalAnd,
		Priority:        10,
		Enabled:         true,
		Conditions: []Condition{
			{Field: "applicant.cibilScore", Operator: OpGreaterThanOrEqual, Value: "650"},
			{Field: "applicant.age", Operator: OpBetween, MinValue: "21", MaxValue: "58"},
			{Field: "applicant.employmentType", Operator: OpIn, Values: []string{"SALARIED", "PROFESSIONAL"}},
		},
		Actions: []Action{
			{Type: ActionApprove, Description: "auto approve"},
		},
	}
}

func approvalContext() EvaluationContext {
	return EvaluationContext{
		"applicant.cibilScore":     "750",
		"applicant.age":            "35",
		"applicant.employmentType": "SALARIED",
	}
}

func TestRuleEvaluator_AllConditionsMatch(t *testing.T) {
	e := NewRuleEvaluator(nil)
	res := e.Evaluate(approvalRule(), approvalContext(), "ELIG-001")

	if !res.Matched {
		t.Fatalf("rule should match: %+v", res.ConditionResults)
	}
	if len(res.ConditionResults) != 3 {
		t.Errorf("ConditionResults = %d, want 3", len(res.ConditionResults))
	}
	if len(res.TriggeredActions) != 1 {
		t.Fatalf("TriggeredActions = %d, want 1", len(res.TriggeredActions))
	}

	a := res.TriggeredActions[0]
	if a.ActionType != ActionApprove {
		t.Errorf("ActionType = %s, want APPROVE", a.ActionType)
	}
	if a.SourcePolicyCode != "ELIG-001" || a.SourceRuleName != "prime-salaried" {
		t.Errorf("source = %s/%s", a.SourcePolicyCode, a.SourceRuleName)
	}
	if a.Priority != 10 {
		t.Errorf("Priority = %d, want rule priority 10", a.Priority)
	}
}

// Every condition is evaluated even after the AND outcome is decided.
func TestRuleEvaluator_AndEvaluatesEveryCondition(t *testing.T) {
	ctx := approvalContext()
	ctx["applicant.cibilScore"] = "600"

	res := NewRuleEvaluator(nil).Evaluate(approvalRule(), ctx, "ELIG-001")

	if res.Matched {
		t.Error("rule should not match with a low score")
	}
	if len(res.ConditionResults) != 3 {
		t.Errorf("ConditionResults = %d, want 3", len(res.ConditionResults))
	}
	if res.ConditionResults[0].Matched {
		t.Error("score condition should not match")
	}
	if !res.ConditionResults[1].Matched || !res.ConditionResults[2].Matched {
		t.Error("remaining conditions should still be evaluated and match")
	}
	if res.TriggeredActions == nil || len(res.TriggeredActions) != 0 {
		t.Errorf("unmatched rule should have an empty action list, got %v", res.TriggeredActions)
	}
}

func TestRuleEvaluator_Or(t *testing.T) {
	rule := Rule{
		Name:            "risky",
		LogicalOperator: LogicalOr,
		Enabled:         true,
		Conditions: []Condition{
			{Field: "applicant.cibilScore", Operator: OpLessThan, Value: "600"},
			{Field: "applicant.employmentType", Operator: OpEquals, Value: "UNEMPLOYED"},
		},
		Actions: []Action{{Type: ActionFlagRisk}},
	}
	e := NewRuleEvaluator(nil)

	if res := e.Evaluate(rule, approvalContext(), "RISK-001"); res.Matched {
		t.Error("OR rule should not match when no condition holds")
	}

	ctx := approvalContext()
	ctx["applicant.employmentType"] = "unemployed"
	res := e.Evaluate(rule, ctx, "RISK-001")
	if !res.Matched {
		t.Error("OR rule should match when one condition holds")
	}
	if res.LogicalOperator != LogicalOr {
		t.Errorf("LogicalOperator = %s, want OR", res.LogicalOperator)
	}
	if len(res.ConditionResults) != 2 {
		t.Errorf("ConditionResults = %d, want 2", len(res.ConditionResults))
	}
}

func TestRuleEvaluator_NoConditionsAlwaysMatch(t *testing.T) {
	e := NewRuleEvaluator(nil)
	for _, op := range []LogicalOperator{LogicalAnd, LogicalOr, ""} {
		rule := Rule{Name: "always", LogicalOperator: op, Actions: []Action{{Type: ActionRequireDocument}}}
		res := e.Evaluate(rule, EvaluationContext{}, "DOC-001")
		if !res.Matched {
			t.Errorf("rule without conditions should match (operator %q)", op)
		}
		if len(res.TriggeredActions) != 1 {
			t.Errorf("TriggeredActions = %d, want 1", len(res.TriggeredActions))
		}
	}
}

func TestRuleEvaluator_DefaultsToAnd(t *testing.T) {
	rule := approvalRule()
	rule.LogicalOperator = ""

	res := NewRuleEvaluator(nil).Evaluate(rule, approvalContext(), "ELIG-001")
	if res.LogicalOperator != LogicalAnd {
		t.Errorf("LogicalOperator = %q, want AND", res.LogicalOperator)
	}
}

// Triggered actions carry their own parameter maps.
func TestRuleEvaluator_CopiesParameters(t *testing.T) {
	rule := Rule{
		Name:    "rate",
		Enabled: true,
		Actions: []Action{{Type: ActionSetInterestRate, Parameters: map[string]string{"rate": "12.5"}}},
	}
	res := NewRuleEvaluator(nil).Evaluate(rule, EvaluationContext{}, "PRC-001")
	res.TriggeredActions[0].Parameters["rate"] = "99"

	if rule.Actions[0].Parameters["rate"] != "12.5" {
		t.Error("mutating a triggered action must not change the rule definition")
	}
}
