package policy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Operands beyond these bounds are not numbers for rule purposes. Comparing
// decimals rescales both to a common exponent, so an exponent like 1e900000000
// would otherwise allocate a huge integer.
const (
	maxNumberLength   = 64
	maxNumberExponent = 1000
)

// parseNumber parses a context or condition operand as an exact decimal.
// Every numeric operator goes through here.
func parseNumber(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("cannot parse empty value as number")
	}
	if len(trimmed) > maxNumberLength {
		return decimal.Zero, fmt.Errorf("cannot parse %d-character value as number (max %d)", len(trimmed), maxNumberLength)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot parse %q as number", s)
	}
	if exp := d.Exponent(); exp > maxNumberExponent || exp < -maxNumberExponent {
		return decimal.Zero, fmt.Errorf("number %q is out of range", trimmed)
	}
	return d, nil
}

// parseBool accepts true/1/yes and false/0/no, case-insensitively.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("cannot parse %q as boolean", s)
}

// equalFold compares two operands as trimmed, case-insensitive strings.
func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
