package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRecord(t *testing.T) {
	m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

	m.ObserveSubmission("inserted")
	m.ObserveSubmission("inserted")
	m.ObserveArtifactOp("promote", nil)
	m.ObserveArtifactOp("remove", errors.New("boom"))
	m.ObserveRankingQuery("global")
	m.ObserveStaleSwept(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactOps.WithLabelValues("promote", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactOps.WithLabelValues("remove", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rankingQueries.WithLabelValues("global")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.staleSwept))
}

func TestNilManagerIsNoop(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.ObserveSubmission("inserted")
		m.ObserveArtifactOp("promote", nil)
		m.ObserveRankingQuery("personal")
		m.ObserveStaleSwept(1)
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(h))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := NewManager(WithNamespace("test"))

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_http_request_duration_seconds_count{method="GET",route="/things/{id}",status_code="418"} 1`), body)
}
