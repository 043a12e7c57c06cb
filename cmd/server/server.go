package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/loanpolicy/audit"
	"github.com/liamcoop/loanpolicy/internal/logger"
	"github.com/liamcoop/loanpolicy/internal/metrics"
	"github.com/liamcoop/loanpolicy/policy"
	"github.com/liamcoop/loanpolicy/policyadmin"
)

// maxBodyBytes caps request bodies for evaluation and policy writes.
const maxBodyBytes = 1 << 20

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	engine    *policy.Engine
	manager   *policyadmin.Manager
	publisher audit.Publisher
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	checks    []HealthCheck
	router    *chi.Mux
}

// NewServer wires the HTTP API. publisher, m and gatherer may be nil.
func NewServer(engine *policy.Engine, manager *policyadmin.Manager, publisher audit.Publisher,
	m *metrics.Metrics, gatherer prometheus.Gatherer, checks ...HealthCheck) *Server {
	s := &Server{
		engine:    engine,
		manager:   manager,
		publisher: publisher,
		metrics:   m,
		gatherer:  gatherer,
		checks:    checks,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Evaluation
	r.Post("/api/v1/evaluate", s.handleEvaluate)

	// Policy administration
	r.Route("/api/v1/policies", func(r chi.Router) {
		r.Get("/", s.handleListPolicies)
		r.Post("/", s.handleCreatePolicy)

		r.Route("/{policyId}", func(r chi.Router) {
			r.Get("/", s.handleGetPolicy)
			r.Put("/", s.handleUpdatePolicy)
			r.Delete("/", s.handleDeletePolicy)
			r.Post("/activate", s.handleActivatePolicy)
			r.Post("/retire", s.handleRetirePolicy)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.checks {
		if err := check(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unhealthy",
				Error:  err.Error(),
			})
			return
		}
	}

	policies, err := s.manager.ListPolicies(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		PoliciesLoaded: len(policies),
	})
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req policy.EvaluationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	if req.ApplicationID == "" {
		respondError(w, http.StatusBadRequest, "applicationId is required", nil)
		return
	}

	resp, err := s.engine.Evaluate(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "evaluation failed", err)
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(r.Context(), audit.NewDecisionEvent(resp)); err != nil {
			s.metrics.IncrementPublishError()
			logger.Warn("decision event publish failed", "application_id", resp.ApplicationID, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.manager.ListPolicies(r.Context())
	if err != nil {
		respondPolicyError(w, "failed to list policies", err)
		return
	}

	resp := PoliciesListResponse{Policies: make([]PolicyResponse, 0, len(policies))}
	for _, p := range policies {
		resp.Policies = append(resp.Policies, newPolicyResponse(p))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	p, err := s.manager.CreatePolicy(r.Context(), req.toPolicy())
	if err != nil {
		respondPolicyError(w, "failed to create policy", err)
		return
	}
	respondJSON(w, http.StatusCreated, newPolicyResponse(p))
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.GetPolicy(r.Context(), chi.URLParam(r, "policyId"))
	if err != nil {
		respondPolicyError(w, "policy not found", err)
		return
	}
	respondJSON(w, http.StatusOK, newPolicyResponse(p))
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	p, err := s.manager.UpdatePolicy(r.Context(), chi.URLParam(r, "policyId"), req.toPolicy())
	if err != nil {
		respondPolicyError(w, "failed to update policy", err)
		return
	}
	respondJSON(w, http.StatusOK, newPolicyResponse(p))
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeletePolicy(r.Context(), chi.URLParam(r, "policyId")); err != nil {
		respondPolicyError(w, "failed to delete policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivatePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.ActivatePolicy(r.Context(), chi.URLParam(r, "policyId"))
	if err != nil {
		respondPolicyError(w, "failed to activate policy", err)
		return
	}
	respondJSON(w, http.StatusOK, newPolicyResponse(p))
}

func (s *Server) handleRetirePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.RetirePolicy(r.Context(), chi.URLParam(r, "policyId"))
	if err != nil {
		respondPolicyError(w, "failed to retire policy", err)
		return
	}
	respondJSON(w, http.StatusOK, newPolicyResponse(p))
}

// Helper functions
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
		return
	}
	respondError(w, http.StatusBadRequest, "invalid request body", err)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	logger.HTTPStatus(status, message, "status", status, "error", err)
	respondJSON(w, status, response)
}

// respondPolicyError maps domain errors to HTTP status codes.
func respondPolicyError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, policy.ErrInvalidPolicy), errors.Is(err, policy.ErrInvalidLoanType):
		status = http.StatusBadRequest
	case errors.Is(err, policy.ErrPolicyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, policy.ErrPolicyExists), errors.Is(err, policyadmin.ErrInvalidTransition):
		status = http.StatusConflict
	}
	respondError(w, status, message, err)
}
