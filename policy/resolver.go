package policy

import "sort"

// ActionResolver merges the actions triggered across all matched rules and
// derives the overall decision.
type ActionResolver struct{}

// NewActionResolver creates an action resolver.
func NewActionResolver() *ActionResolver {
	return &ActionResolver{}
}

// ResolveActions keeps one action per setting and decision type (the lowest
// priority wins, first seen on ties) and every accumulating action. Types
// outside the classification table are kept as-is, like accumulating ones.
// The result is ordered by ascending priority.
func (r *ActionResolver) ResolveActions(actions []*TriggeredAction) []*TriggeredAction {
	winners := make(map[ActionType]int)
	resolved := make([]*TriggeredAction, 0, len(actions))

	for _, a := range actions {
		if a == nil {
			continue
		}
		switch a.ActionType.Class() {
		case ClassSetting, ClassDecision:
			idx, seen := winners[a.ActionType]
			if !seen {
				winners[a.ActionType] = len(resolved)
				resolved = append(resolved, a)
				continue
			}
			if a.Priority < resolved[idx].Priority {
				resolved[idx] = a
			}
		default: // ClassAccumulating, ClassUnknown
			resolved = append(resolved, a)
		}
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Priority < resolved[j].Priority
	})
	return resolved
}

// ResolveDecision applies the fixed conservative-wins precedence to the set of
// action types present, regardless of their priorities:
// REJECT > REFER/FLAG_RISK > APPROVE > NO_DECISION, and NO_MATCH when empty.
func (r *ActionResolver) ResolveDecision(actions []*TriggeredAction) Decision {
	if len(actions) == 0 {
		return DecisionNoMatch
	}

	present := make(map[ActionType]bool, len(actions))
	for _, a := range actions {
		if a != nil {
			present[a.ActionType] = true
		}
	}

	switch {
	case present[ActionReject]:
		return DecisionRejected
	case present[ActionRefer], present[ActionFlagRisk]:
		return DecisionReferred
	case present[ActionApprove]:
		return DecisionApproved
	}
	return DecisionNoDecision
}
