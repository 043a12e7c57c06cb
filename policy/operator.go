package policy

// Operator is the comparison applied by a Condition.
//
//exhaustive:enforce
type Operator string

const (
	OpEquals             Operator = "EQUALS"
	OpNotEquals          Operator = "NOT_EQUALS"
	OpGreaterThan        Operator = "GREATER_THAN"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThan           Operator = "LESS_THAN"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
	OpIn                 Operator = "IN"
	OpNotIn              Operator = "NOT_IN"
	OpBetween            Operator = "BETWEEN"
	OpContains           Operator = "CONTAINS"
	OpStartsWith         Operator = "STARTS_WITH"
	OpIsNull             Operator = "IS_NULL"
	OpIsNotNull          Operator = "IS_NOT_NULL"
	OpIsTrue             Operator = "IS_TRUE"
	OpIsFalse            Operator = "IS_FALSE"
)

// Operators returns every supported operator.
func Operators() []Operator {
	return []Operator{
		OpEquals, OpNotEquals,
		OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpIn, OpNotIn, OpBetween,
		OpContains, OpStartsWith,
		OpIsNull, OpIsNotNull,
		OpIsTrue, OpIsFalse,
	}
}

// operandKind describes which Condition fields an operator reads.
type operandKind int

const (
	operandNone operandKind = iota
	operandValue
	operandValues
	operandRange
)

// operands returns the operand shape required by op, and false for unknown operators.
func (op Operator) operands() (operandKind, bool) {
	switch op {
	case OpEquals, OpNotEquals,
		OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpContains, OpStartsWith:
		return operandValue, true
	case OpIn, OpNotIn:
		return operandValues, true
	case OpBetween:
		return operandRange, true
	case OpIsNull, OpIsNotNull, OpIsTrue, OpIsFalse:
		return operandNone, true
	}
	return operandNone, false
}

// IsValid reports whether op is one of the supported operators.
func (op Operator) IsValid() bool {
	_, ok := op.operands()
	return ok
}

// symbol is the short form used in human readable reasons.
func (op Operator) symbol() string {
	switch op {
	case OpEquals:
		return "=="
	case OpNotEquals:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	case OpBetween:
		return "between"
	case OpContains:
		return "contains"
	case OpStartsWith:
		return "starts with"
	case OpIsNull:
		return "is null"
	case OpIsNotNull:
		return "is not null"
	case OpIsTrue:
		return "is true"
	case OpIsFalse:
		return "is false"
	}
	return string(op)
}
