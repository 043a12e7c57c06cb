package policy

import "errors"

var (
	// ErrPolicyNotFound is returned by stores when no policy has the requested ID.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyExists is returned when a policy ID or name is already taken.
	ErrPolicyExists = errors.New("policy already exists")

	// ErrInvalidLoanType is returned when a loan type string cannot be parsed.
	ErrInvalidLoanType = errors.New("invalid loan type")

	// ErrInvalidPolicy is returned when a policy definition cannot be evaluated.
	ErrInvalidPolicy = errors.New("invalid policy")
)
