package main

import (
	"strings"
	"time"

	"github.com/liamcoop/loanpolicy/policy"
)

// API request and response models

// PolicyRequest represents the request body for creating or updating a policy
type PolicyRequest struct {
	PolicyCode string        `json:"policyCode" example:"ELIG-PL-001" binding:"required"`
	Name       string        `json:"name" example:"Personal Loan Eligibility" binding:"required"`
	Category   string        `json:"category" example:"ELIGIBILITY" binding:"required"`
	LoanType   string        `json:"loanType,omitempty" example:"PERSONAL_LOAN"`
	Status     string        `json:"status,omitempty" example:"DRAFT"`
	Priority   int           `json:"priority" example:"10"`
	Rules      []RuleRequest `json:"rules"`
}

// RuleRequest is a rule in a policy request. An omitted enabled flag means
// the rule is enabled, as in policy files.
type RuleRequest struct {
	Name            string             `json:"name" example:"prime-applicant"`
	LogicalOperator string             `json:"logicalOperator,omitempty" example:"AND"`
	Conditions      []policy.Condition `json:"conditions"`
	Actions         []policy.Action    `json:"actions"`
	Priority        int                `json:"priority" example:"10"`
	Enabled         *bool              `json:"enabled,omitempty" example:"true"`
}

func (r RuleRequest) toRule() policy.Rule {
	rule := policy.Rule{
		Name:            strings.TrimSpace(r.Name),
		LogicalOperator: policy.LogicalOperator(strings.ToUpper(strings.TrimSpace(r.LogicalOperator))),
		Conditions:      r.Conditions,
		Actions:         r.Actions,
		Priority:        r.Priority,
		Enabled:         r.Enabled == nil || *r.Enabled,
	}
	if rule.LogicalOperator == "" {
		rule.LogicalOperator = policy.LogicalAnd
	}
	return rule
}

// toPolicy converts the request into a policy definition. An empty or "ALL"
// loan type makes the policy global.
func (r PolicyRequest) toPolicy() *policy.Policy {
	p := &policy.Policy{
		PolicyCode: strings.TrimSpace(r.PolicyCode),
		Name:       strings.TrimSpace(r.Name),
		Category:   policy.Category(strings.ToUpper(r.Category)),
		Status:     policy.Status(strings.ToUpper(r.Status)),
		Priority:   r.Priority,
		Rules:      make([]policy.Rule, 0, len(r.Rules)),
	}
	for _, rr := range r.Rules {
		p.Rules = append(p.Rules, rr.toRule())
	}
	if lt := strings.TrimSpace(r.LoanType); lt != "" && !strings.EqualFold(lt, "ALL") {
		loanType := policy.LoanType(strings.ToUpper(lt))
		p.LoanType = &loanType
	}
	return p
}

// PolicyResponse represents a policy in API responses
type PolicyResponse struct {
	ID         string        `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	PolicyCode string        `json:"policyCode" example:"ELIG-PL-001"`
	Name       string        `json:"name" example:"Personal Loan Eligibility"`
	Category   string        `json:"category" example:"ELIGIBILITY"`
	LoanType   string        `json:"loanType,omitempty" example:"PERSONAL_LOAN"`
	Status     string        `json:"status" example:"ACTIVE"`
	Priority   int           `json:"priority" example:"10"`
	Version    int           `json:"version" example:"1"`
	Rules      []policy.Rule `json:"rules"`
	CreatedAt  time.Time     `json:"createdAt" example:"2024-01-15T10:30:00Z"`
	UpdatedAt  time.Time     `json:"updatedAt" example:"2024-01-15T10:30:00Z"`
}

func newPolicyResponse(p *policy.Policy) PolicyResponse {
	resp := PolicyResponse{
		ID:         p.ID,
		PolicyCode: p.PolicyCode,
		Name:       p.Name,
		Category:   string(p.Category),
		Status:     string(p.Status),
		Priority:   p.Priority,
		Version:    p.Version,
		Rules:      p.Rules,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.LoanType != nil {
		resp.LoanType = string(*p.LoanType)
	}
	return resp
}

// PoliciesListResponse represents the response for listing policies
type PoliciesListResponse struct {
	Policies []PolicyResponse `json:"policies"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid policy"`
	Details string `json:"details,omitempty" example:"policy ELIG-PL-001: name is required"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string `json:"status" example:"healthy"`
	PoliciesLoaded int    `json:"policiesLoaded" example:"12"`
	Error          string `json:"error,omitempty"`
}
