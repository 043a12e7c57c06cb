package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for policy evaluation.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Evaluations by overall decision
	Evaluations *prometheus.CounterVec

	// End-to-end evaluation latency including policy lookup
	EvaluateLatency prometheus.Histogram

	// Policy cache lookups by result: hit, miss, error
	CacheLookups *prometheus.CounterVec

	// Failed cache writes (non-fatal)
	CacheWriteErrors prometheus.Counter

	// Policy store failures (fatal to the request)
	StoreErrors prometheus.Counter

	// Failed decision event publications (non-fatal)
	PublishErrors prometheus.Counter
}

// New creates and registers the metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanpolicy_evaluations_total",
			Help: "Total policy evaluations by overall decision",
		}, []string{"decision"}),

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loanpolicy_evaluate_duration_seconds",
			Help:    "Duration of policy evaluation including policy lookup",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanpolicy_cache_lookups_total",
			Help: "Policy cache lookups by result",
		}, []string{"result"}),

		CacheWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "loanpolicy_cache_write_errors_total",
			Help: "Policy cache writes that failed and were ignored",
		}),

		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "loanpolicy_store_errors_total",
			Help: "Policy store lookups that failed",
		}),

		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "loanpolicy_decision_publish_errors_total",
			Help: "Decision events that could not be published",
		}),
	}
}

// IncrementEvaluation records an evaluation outcome.
func (m *Metrics) IncrementEvaluation(decision string) {
	if m != nil {
		m.Evaluations.WithLabelValues(decision).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementCacheLookup records a cache lookup result ("hit", "miss" or "error").
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// IncrementCacheWriteError records a failed cache write.
func (m *Metrics) IncrementCacheWriteError() {
	if m != nil {
		m.CacheWriteErrors.Inc()
	}
}

// IncrementStoreError records a failed store lookup.
func (m *Metrics) IncrementStoreError() {
	if m != nil {
		m.StoreErrors.Inc()
	}
}

// IncrementPublishError records a failed decision event publication.
func (m *Metrics) IncrementPublishError() {
	if m != nil {
		m.PublishErrors.Inc()
	}
}
