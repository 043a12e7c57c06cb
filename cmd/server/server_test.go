package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanpolicy/audit"
	"github.com/liamcoop/loanpolicy/internal/metrics"
	"github.com/liamcoop/loanpolicy/policy"
	"github.com/liamcoop/loanpolicy/policyadmin"
)

type recordingPublisher struct {
	events []audit.DecisionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event audit.DecisionEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() {}

type testServer struct {
	server    *Server
	publisher *recordingPublisher
	metrics   *metrics.Metrics
}

func newTestServer(t *testing.T, checks ...HealthCheck) *testServer {
	t.Helper()
	store := policy.NewInMemoryPolicyStore()
	cache := policy.NewInMemoryPolicyCache(policy.DefaultCacheConfig())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	engine := policy.NewEngine(store, policy.WithCache(cache), policy.WithMetrics(m))
	manager := policyadmin.NewManager(store, cache, nil)
	publisher := &recordingPublisher{}

	return &testServer{
		server:    NewServer(engine, manager, publisher, m, reg, checks...),
		publisher: publisher,
		metrics:   m,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func eligibilityRequest() PolicyRequest {
	return PolicyRequest{
		PolicyCode: "ELIG-PL-001",
		Name:       "Personal loan eligibility",
		Category:   "eligibility",
		LoanType:   "PERSONAL_LOAN",
		Priority:   10,
		Rules: []RuleRequest{{
			Name:            "prime",
			LogicalOperator: "AND",
			Priority:        10,
			Conditions: []policy.Condition{
				{Field: "applicant.cibilScore", Operator: policy.OpGreaterThanOrEqual, Value: "650"},
				{Field: "applicant.age", Operator: policy.OpBetween, MinValue: "21", MaxValue: "58"},
			},
			Actions: []policy.Action{
				{Type: policy.ActionApprove},
				{Type: policy.ActionSetInterestRate, Parameters: map[string]string{"rate": "12.5"}},
			},
		}},
	}
}

func evaluateBody(score int) map[string]any {
	return map[string]any{
		"applicationId":  "APP-7",
		"loanType":       "PERSONAL_LOAN",
		"cibilScore":     score,
		"applicantAge":   30,
		"employmentType": "SALARIED",
	}
}

// TestEndToEnd_CreateActivateEvaluate covers the full workflow:
// create a policy, activate it and evaluate an application against it.
func TestEndToEnd_CreateActivateEvaluate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/policies", eligibilityRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[PolicyResponse](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "DRAFT", created.Status)
	assert.Equal(t, "ELIGIBILITY", created.Category)

	// Draft policies are not evaluated
	rec = ts.do(t, http.MethodPost, "/api/v1/evaluate", evaluateBody(720))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, policy.DecisionNoMatch, decode[policy.EvaluationResponse](t, rec).OverallDecision)

	rec = ts.do(t, http.MethodPost, "/api/v1/policies/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ACTIVE", decode[PolicyResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/evaluate", evaluateBody(720))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[policy.EvaluationResponse](t, rec)
	assert.Equal(t, policy.DecisionApproved, resp.OverallDecision)
	assert.Equal(t, "APP-7", resp.ApplicationID)
	assert.Len(t, resp.TriggeredActions, 2)
	assert.GreaterOrEqual(t, len(resp.EvaluationLog), 4)

	rec = ts.do(t, http.MethodPost, "/api/v1/evaluate", evaluateBody(600))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, policy.DecisionNoMatch, decode[policy.EvaluationResponse](t, rec).OverallDecision)

	require.Len(t, ts.publisher.events, 3)
	assert.Equal(t, "APPROVED", ts.publisher.events[1].Decision)

	rec = ts.do(t, http.MethodPost, "/api/v1/policies/"+created.ID+"/retire", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/evaluate", evaluateBody(720))
	assert.Equal(t, policy.DecisionNoMatch, decode[policy.EvaluationResponse](t, rec).OverallDecision)
}

func TestCreatePolicy_RuleEnabledDefault(t *testing.T) {
	ts := newTestServer(t)

	body := `{
		"policyCode": "ELIG-PL-002",
		"name": "Prime applicants",
		"category": "ELIGIBILITY",
		"loanType": "PERSONAL_LOAN",
		"priority": 10,
		"rules": [
			{"name": "prime", "priority": 10,
			 "conditions": [{"field": "applicant.cibilScore", "operator": "GREATER_THAN_OR_EQUAL", "value": "750"}],
			 "actions": [{"type": "APPROVE"}]},
			{"name": "paused", "priority": 1, "enabled": false,
			 "conditions": [],
			 "actions": [{"type": "REJECT"}]}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/policies", strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[PolicyResponse](t, rec)
	require.Len(t, created.Rules, 2)
	assert.True(t, created.Rules[0].Enabled)
	assert.Equal(t, policy.LogicalAnd, created.Rules[0].LogicalOperator)
	assert.False(t, created.Rules[1].Enabled)

	rec = ts.do(t, http.MethodPost, "/api/v1/policies/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/evaluate", evaluateBody(780))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[policy.EvaluationResponse](t, rec)
	assert.Equal(t, policy.DecisionApproved, resp.OverallDecision)
	assert.Equal(t, 1, resp.RulesEvaluated)
	assert.Equal(t, 1, resp.RulesMatched)
}

func TestOversizedBodies(t *testing.T) {
	ts := newTestServer(t)
	padding := strings.Repeat(" ", maxBodyBytes)

	for _, path := range []string{"/api/v1/evaluate", "/api/v1/policies"} {
		body := `{"applicationId": "APP-1",` + padding + `"loanType": "PERSONAL_LOAN"}`
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		ts.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, path)
		assert.Equal(t, "request body too large", decode[ErrorResponse](t, rec).Error)
	}
	assert.Empty(t, ts.publisher.events)
}

func TestEvaluateInvalidLoanType(t *testing.T) {
	ts := newTestServer(t)

	body := evaluateBody(720)
	body["loanType"] = "SPACESHIP"
	rec := ts.do(t, http.MethodPost, "/api/v1/evaluate", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, policy.DecisionError, decode[policy.EvaluationResponse](t, rec).OverallDecision)
}

func TestEvaluateBadRequests(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := evaluateBody(720)
	delete(body, "applicationId")
	rec = ts.do(t, http.MethodPost, "/api/v1/evaluate", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "applicationId is required", decode[ErrorResponse](t, rec).Error)
}

// Publish failures are counted but do not fail the evaluation.
func TestEvaluatePublishFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.publisher.err = errors.New("broker unavailable")

	rec := ts.do(t, http.MethodPost, "/api/v1/evaluate", evaluateBody(720))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicyErrors(t *testing.T) {
	ts := newTestServer(t)

	invalid := eligibilityRequest()
	invalid.Category = "MARKETING"
	rec := ts.do(t, http.MethodPost, "/api/v1/policies", invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/policies", eligibilityRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[PolicyResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/v1/policies", eligibilityRequest())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/policies/"+created.ID+"/retire", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/policies/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/policies/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyCRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/policies", eligibilityRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[PolicyResponse](t, rec)

	rec = ts.do(t, http.MethodGet, "/api/v1/policies/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PERSONAL_LOAN", decode[PolicyResponse](t, rec).LoanType)

	update := eligibilityRequest()
	update.LoanType = "ALL"
	update.Priority = 2
	rec = ts.do(t, http.MethodPut, "/api/v1/policies/"+created.ID, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[PolicyResponse](t, rec)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 2, updated.Priority)
	assert.Empty(t, updated.LoanType)

	rec = ts.do(t, http.MethodGet, "/api/v1/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[PoliciesListResponse](t, rec).Policies, 1)

	rec = ts.do(t, http.MethodDelete, "/api/v1/policies/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/policies", nil)
	assert.Empty(t, decode[PoliciesListResponse](t, rec).Policies)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)

	down := newTestServer(t, func(context.Context) error { return errors.New("database unreachable") })
	rec = down.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "database unreachable", health.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/evaluate", evaluateBody(720))

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `loanpolicy_evaluations_total{decision="NO_MATCH"} 1`)
}
