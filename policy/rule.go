package policy

// RuleEvaluator evaluates a rule's conditions and produces the actions it
// triggers. It is a pure function of its inputs.
type RuleEvaluator struct {
	conditions *ConditionEvaluator
}

// NewRuleEvaluator creates a rule evaluator backed by the given condition evaluator.
func NewRuleEvaluator(conditions *ConditionEvaluator) *RuleEvaluator {
	if conditions == nil {
		conditions = NewConditionEvaluator()
	}
	return &RuleEvaluator{conditions: conditions}
}

// Evaluate runs every condition of rule against ctx, combining the results
// with the rule's logical operator. All conditions are evaluated even when the
// outcome is already decided so the audit trail is complete. A rule without
// conditions always matches.
func (e *RuleEvaluator) Evaluate(rule Rule, ctx EvaluationContext, policyCode string) *RuleMatchResult {
	op := rule.LogicalOperator
	if op != LogicalOr {
		op = LogicalAnd
	}

	results := make([]ConditionResult, 0, len(rule.Conditions))
	allMatched, anyMatched := true, false
	for _, cond := range rule.Conditions {
		r := e.conditions.Evaluate(cond, ctx)
		results = append(results, r)
		if r.Matched {
			anyMatched = true
		} else {
			allMatched = false
		}
	}

	matched := allMatched
	if op == LogicalOr {
		matched = anyMatched || len(rule.Conditions) == 0
	}

	res := &RuleMatchResult{
		RuleName:         rule.Name,
		Matched:          matched,
		LogicalOperator:  op,
		ConditionResults: results,
		TriggeredActions: []*TriggeredAction{},
	}
	if !matched {
		return res
	}

	for _, a := range rule.Actions {
		res.TriggeredActions = append(res.TriggeredActions, &TriggeredAction{
			ActionType:       a.Type,
			Parameters:       copyParams(a.Parameters),
			Description:      a.Description,
			SourcePolicyCode: policyCode,
			SourceRuleName:   rule.Name,
			Priority:         rule.Priority,
		})
	}
	return res
}

func copyParams(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
