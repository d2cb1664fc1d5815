// Package metrics provides Prometheus metrics for the score service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithPrometheusRegistry sets the registry metrics are registered on and
// served from.
func WithPrometheusRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns the service's Prometheus collectors. A nil *Manager is valid
// and records nothing.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	submissions     *prometheus.CounterVec
	artifactOps     *prometheus.CounterVec
	rankingQueries  *prometheus.CounterVec
	staleSwept      prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// NewManager creates and registers all collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "jmr",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "score_submissions_total",
		Help:      "Score submissions by global board outcome",
	}, []string{"outcome"})

	m.artifactOps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "replay_artifact_ops_total",
		Help:      "Replay artifact operations by kind and result",
	}, []string{"op", "result"})

	m.rankingQueries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "ranking_queries_total",
		Help:      "Ranking queries by view",
	}, []string{"view"})

	m.staleSwept = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "replay_stale_uploads_removed_total",
		Help:      "Staged uploads removed by the janitor",
	})

	m.requestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration by route and status",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status_code"})

	return m
}

// Registry returns the registry backing the manager
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSubmission counts a submission outcome
func (m *Manager) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// ObserveArtifactOp counts a replay artifact operation
func (m *Manager) ObserveArtifactOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.artifactOps.WithLabelValues(op, result).Inc()
}

// ObserveRankingQuery counts a ranking query
func (m *Manager) ObserveRankingQuery(view string) {
	if m == nil {
		return
	}
	m.rankingQueries.WithLabelValues(view).Inc()
}

// ObserveStaleSwept counts uploads removed by the janitor
func (m *Manager) ObserveStaleSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleSwept.Add(float64(n))
}

// Middleware records request durations labelled by chi route pattern
func (m *Manager) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
