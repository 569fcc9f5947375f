package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AuthOutcome("login", "ok")
	m.AuthOutcome("login", "ok")
	m.AuthOutcome("login", "invalid_credentials")
	m.EventPublished("USER_LOGIN")
	m.EventDropped("USER_LOGOUT")
	m.EventFailed("USER_LOGOUT")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues("login", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues("login", "invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("USER_LOGIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("USER_LOGOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsFailed.WithLabelValues("USER_LOGOUT")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthOutcome("login", "ok")
		m.EventPublished("USER_LOGIN")
		m.ObserveHTTP(http.MethodGet, "/health", 200, time.Millisecond)
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveHTTP(http.MethodPost, "/auth/login", 200, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/auth/login",status="200"} 1`)
}
