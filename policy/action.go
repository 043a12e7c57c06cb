package policy

// ActionType is the effect an Action has when its rule matches.
type ActionType string

const (
	ActionSetInterestRate  ActionType = "SET_INTEREST_RATE"
	ActionSetProcessingFee ActionType = "SET_PROCESSING_FEE"
	ActionSetMaxAmount     ActionType = "SET_MAX_AMOUNT"
	ActionSetMaxTenure     ActionType = "SET_MAX_TENURE"
	ActionAssignToRole     ActionType = "ASSIGN_TO_ROLE"
	ActionRequireDocument  ActionType = "REQUIRE_DOCUMENT"
	ActionNotify           ActionType = "NOTIFY"
	ActionApprove          ActionType = "APPROVE"
	ActionReject           ActionType = "REJECT"
	ActionRefer            ActionType = "REFER"
	ActionFlagRisk         ActionType = "FLAG_RISK"
)

// ActionClass determines how triggered actions of a type are merged.
type ActionClass int

const (
	// ClassUnknown is returned for action types outside the table.
	ClassUnknown ActionClass = iota
	// ClassSetting types keep only the lowest-priority instance.
	ClassSetting
	// ClassAccumulating types keep every instance.
	ClassAccumulating
	// ClassDecision types keep only the lowest-priority instance and feed the
	// overall decision.
	ClassDecision
)

func (c ActionClass) String() string {
	switch c {
	case ClassSetting:
		return "setting"
	case ClassAccumulating:
		return "accumulating"
	case ClassDecision:
		return "decision"
	}
	return "unknown"
}

// actionClasses is the single source of truth for action classification.
var actionClasses = map[ActionType]ActionClass{
	ActionSetInterestRate:  ClassSetting,
	ActionSetProcessingFee: ClassSetting,
	ActionSetMaxAmount:     ClassSetting,
	ActionSetMaxTenure:     ClassSetting,
	ActionAssignToRole:     ClassSetting,
	ActionRequireDocument:  ClassAccumulating,
	ActionNotify:           ClassAccumulating,
	ActionApprove:          ClassDecision,
	ActionReject:           ClassDecision,
	ActionRefer:            ClassDecision,
	ActionFlagRisk:         ClassDecision,
}

// Class returns the merge classification of t.
func (t ActionType) Class() ActionClass {
	return actionClasses[t]
}

// IsValid reports whether t is a known action type.
func (t ActionType) IsValid() bool {
	return t.Class() != ClassUnknown
}
