package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/liamcoop/loanpolicy/internal/metrics"
)

// Log steps recorded in EvaluationResponse.EvaluationLog.
const (
	StepStart    = "START"
	StepContext  = "CONTEXT"
	StepPolicy   = "POLICY"
	StepComplete = "COMPLETE"
	StepError    = "ERROR"
)

// EvaluationRequest carries the application facts to evaluate. The typed
// fields are the common facts; Facts holds any further facts, nested maps
// being flattened into dotted keys.
type EvaluationRequest struct {
	ApplicationID   string         `json:"applicationId"`
	LoanType        string         `json:"loanType"`
	RequestedAmount *float64       `json:"requestedAmount,omitempty"`
	TenureMonths    *int           `json:"tenureMonths,omitempty"`
	CibilScore      *int           `json:"cibilScore,omitempty"`
	ApplicantAge    *int           `json:"applicantAge,omitempty"`
	EmploymentType  string         `json:"employmentType,omitempty"`
	MonthlyIncome   *float64       `json:"monthlyIncome,omitempty"`
	Facts           map[string]any `json:"facts,omitempty"`
}

// Context builds the EvaluationContext for the request. Typed fields take
// precedence over entries in Facts with the same key.
func (r *EvaluationRequest) Context() EvaluationContext {
	ctx := FlattenFacts(r.Facts)
	set := func(key string, v any) {
		if s, ok := formatFact(v); ok {
			ctx[key] = s
		}
	}
	if r.ApplicationID != "" {
		set("application.id", r.ApplicationID)
	}
	if r.LoanType != "" {
		set("loan.type", strings.ToUpper(strings.TrimSpace(r.LoanType)))
	}
	if r.RequestedAmount != nil {
		set("loan.requestedAmount", *r.RequestedAmount)
	}
	if r.TenureMonths != nil {
		set("loan.tenureMonths", *r.TenureMonths)
	}
	if r.CibilScore != nil {
		set("applicant.cibilScore", *r.CibilScore)
	}
	if r.ApplicantAge != nil {
		set("applicant.age", *r.ApplicantAge)
	}
	if r.EmploymentType != "" {
		set("applicant.employmentType", r.EmploymentType)
	}
	if r.MonthlyIncome != nil {
		set("applicant.monthlyIncome", *r.MonthlyIncome)
	}
	return ctx
}

// LogEntry is one step of the evaluation audit trail.
type LogEntry struct {
	Timestamp   time.Time          `json:"timestamp"`
	Step        string             `json:"step"`
	PolicyCode  string             `json:"policyCode,omitempty"`
	Message     string             `json:"message"`
	RuleResults []*RuleMatchResult `json:"ruleResults,omitempty"`
}

// EvaluationResponse is the outcome of evaluating an application against all
// applicable policies.
type EvaluationResponse struct {
	ApplicationID        string             `json:"applicationId"`
	OverallDecision      Decision           `json:"overallDecision"`
	PoliciesEvaluated    int                `json:"policiesEvaluated"`
	PoliciesMatched      int                `json:"policiesMatched"`
	RulesEvaluated       int                `json:"rulesEvaluated"`
	RulesMatched         int                `json:"rulesMatched"`
	TriggeredActions     []*TriggeredAction `json:"triggeredActions"`
	EvaluationLog        []LogEntry         `json:"evaluationLog"`
	EvaluationDurationMs int64              `json:"evaluationDurationMs"`
	EvaluatedAt          time.Time          `json:"evaluatedAt"`
}

// Engine orchestrates policy lookup, rule evaluation and action resolution.
// It holds no per-request state; concurrent Evaluate calls are independent.
type Engine struct {
	store    PolicyStore
	cache    PolicyCache
	derived  *DerivedFields
	rules    *RuleEvaluator
	resolver *ActionResolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCache sets the policy cache consulted before the store.
func WithCache(cache PolicyCache) EngineOption {
	return func(en *Engine) { en.cache = cache }
}

// WithDerivedFields sets the derived fields computed for every request.
func WithDerivedFields(d *DerivedFields) EngineOption {
	return func(en *Engine) { en.derived = d }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(en *Engine) { en.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(en *Engine) {
		if l != nil {
			en.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) EngineOption {
	return func(en *Engine) {
		if clock != nil {
			en.clock = clock
		}
	}
}

// NewEngine creates an evaluation engine reading policies from store.
func NewEngine(store PolicyStore, opts ...EngineOption) *Engine {
	en := &Engine{
		store:    store,
		rules:    NewRuleEvaluator(NewConditionEvaluator()),
		resolver: NewActionResolver(),
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(en)
		}
	}
	return en
}

// Evaluate runs every applicable active policy against the request's facts.
//
// An unparseable loan type yields an ERROR decision and no active policies
// yield NO_MATCH; neither is returned as an error. The only error returned is
// a policy store failure.
func (en *Engine) Evaluate(ctx context.Context, req *EvaluationRequest) (*EvaluationResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("evaluation request is required")
	}

	start := en.clock()
	resp := &EvaluationResponse{
		ApplicationID:    req.ApplicationID,
		TriggeredActions: []*TriggeredAction{},
		EvaluationLog:    []LogEntry{},
		EvaluatedAt:      start,
	}
	en.appendLog(resp, StepStart, "", fmt.Sprintf("evaluation started for application %s (loan type %s)", req.ApplicationID, req.LoanType), nil)

	lt, err := ParseLoanType(req.LoanType)
	if err != nil {
		en.appendLog(resp, StepError, "", err.Error(), nil)
		return en.finish(resp, DecisionError, start), nil
	}

	ectx := req.Context()
	skipped := en.derived.Apply(ectx)
	msg := fmt.Sprintf("context built with %d fields", len(ectx))
	if en.derived.Len() > 0 {
		msg += fmt.Sprintf(" (%d derived, %d skipped)", en.derived.Len()-len(skipped), len(skipped))
	}
	if len(skipped) > 0 {
		msg += ": " + strings.Join(skipped, "; ")
	}
	en.appendLog(resp, StepContext, "", msg, nil)

	policies, err := en.activePolicies(ctx, lt)
	if err != nil {
		en.metrics.IncrementStoreError()
		en.logger.Error("policy lookup failed",
			"application_id", req.ApplicationID, "loan_type", lt, "error", err)
		return nil, fmt.Errorf("load active policies for %s: %w", lt, err)
	}

	if len(policies) == 0 {
		en.appendLog(resp, StepComplete, "", fmt.Sprintf("no active policies for loan type %s", lt), nil)
		return en.finish(resp, DecisionNoMatch, start), nil
	}

	var triggered []*TriggeredAction
	for _, p := range policies {
		triggered = append(triggered, en.evaluatePolicy(resp, p, ectx)...)
	}

	resp.TriggeredActions = en.resolver.ResolveActions(triggered)
	decision := en.resolver.ResolveDecision(triggered)

	en.appendLog(resp, StepComplete, "", fmt.Sprintf(
		"decision %s: %d/%d policies matched, %d/%d rules matched, %d action(s) triggered, %d after resolution",
		decision, resp.PoliciesMatched, resp.PoliciesEvaluated, resp.RulesMatched, resp.RulesEvaluated,
		len(triggered), len(resp.TriggeredActions)), nil)

	return en.finish(resp, decision, start), nil
}

// evaluatePolicy runs the enabled rules of p in list order and records one
// audit entry for the policy.
func (en *Engine) evaluatePolicy(resp *EvaluationResponse, p *Policy, ectx EvaluationContext) []*TriggeredAction {
	resp.PoliciesEvaluated++

	var (
		triggered    []*TriggeredAction
		results      []*RuleMatchResult
		rulesMatched int
	)
	for _, rule := range p.Rules {
		if !rule.Enabled {
			continue
		}
		res := en.rules.Evaluate(rule, ectx, p.PolicyCode)
		results = append(results, res)
		if res.Matched {
			rulesMatched++
			triggered = append(triggered, res.TriggeredActions...)
		}
	}

	resp.RulesEvaluated += len(results)
	resp.RulesMatched += rulesMatched
	if rulesMatched > 0 {
		resp.PoliciesMatched++
	}

	en.appendLog(resp, StepPolicy, p.PolicyCode, fmt.Sprintf(
		"policy %s (%s, priority %d): %d/%d rules matched, %d action(s) triggered",
		p.Name, p.Category, p.Priority, rulesMatched, len(results), len(triggered)), results)

	return triggered
}

// activePolicies resolves the policies for lt, preferring the cache. Cache
// failures degrade to a store read and never fail the request.
func (en *Engine) activePolicies(ctx context.Context, lt LoanType) ([]*Policy, error) {
	if en.cache != nil {
		policies, ok, err := en.cache.Get(ctx, lt)
		switch {
		case err != nil:
			en.metrics.IncrementCacheLookup("error")
			en.logger.Warn("policy cache read failed, falling back to store", "loan_type", lt, "error", err)
		case ok:
			en.metrics.IncrementCacheLookup("hit")
			sortPolicies(policies)
			return policies, nil
		default:
			en.metrics.IncrementCacheLookup("miss")
		}
	}

	policies, err := en.store.FindActivePoliciesForLoanType(ctx, lt)
	if err != nil {
		return nil, err
	}
	sortPolicies(policies)

	if en.cache != nil {
		if err := en.cache.Set(ctx, lt, policies); err != nil {
			en.metrics.IncrementCacheWriteError()
			en.logger.Warn("policy cache write failed", "loan_type", lt, "error", err)
		}
	}
	return policies, nil
}

func (en *Engine) appendLog(resp *EvaluationResponse, step, policyCode, message string, results []*RuleMatchResult) {
	resp.EvaluationLog = append(resp.EvaluationLog, LogEntry{
		Timestamp:   en.clock(),
		Step:        step,
		PolicyCode:  policyCode,
		Message:     message,
		RuleResults: results,
	})
}

func (en *Engine) finish(resp *EvaluationResponse, decision Decision, start time.Time) *EvaluationResponse {
	elapsed := en.clock().Sub(start)
	resp.OverallDecision = decision
	resp.EvaluationDurationMs = elapsed.Milliseconds()

	en.metrics.IncrementEvaluation(string(decision))
	en.metrics.ObserveEvaluateLatency(elapsed)
	en.logger.Debug("policy evaluation completed",
		"application_id", resp.ApplicationID,
		"decision", decision,
		"policies_evaluated", resp.PoliciesEvaluated,
		"rules_matched", resp.RulesMatched,
		"duration_ms", resp.EvaluationDurationMs)
	return resp
}
