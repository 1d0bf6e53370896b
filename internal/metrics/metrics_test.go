package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var repair *RepairMetrics
	repair.RecordDeleted(3)
	repair.RecordFixed()
	repair.RecordSkipped()
	repair.RecordStoragesDeleted(1)
	repair.RecordNotification("sent")

	var httpMetrics *HTTPMetrics
	httpMetrics.RecordRequest("GET", "/", 200, time.Millisecond)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := httpMetrics.Middleware(next)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRepairMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newRepairMetrics(reg)

	m.RecordDeleted(2)
	m.RecordDeleted(3)
	m.RecordFixed()
	m.RecordSkipped()
	m.RecordSkipped()
	m.RecordNotification("sent")
	m.RecordNotification("skipped")
	m.RecordNotification("sent")

	assert.Equal(t, 5.0, testutil.ToFloat64(m.sharesDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sharesFixed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sharesSkipped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("sent")))
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/shares/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/shares/1", "/shares/2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/shares/{id}", "404")))
}

func TestHandlerDisabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialized")
	}
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NoError(t, WriteTextfile(t.TempDir()+"/x.prom"))
}

// Runs after TestHandlerDisabled since it enables the global registry.
func TestGlobalMetricsRegisterOnce(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	var repair *RepairMetrics
	require.NotPanics(t, func() {
		repair = NewRepairMetrics()
		assert.Same(t, repair, NewRepairMetrics())
	})
	require.NotNil(t, repair)

	require.NotPanics(t, func() {
		assert.Same(t, NewHTTPMetrics(), NewHTTPMetrics())
	})

	repair.RecordFixed()
	NewRepairMetrics().RecordFixed()
	assert.Equal(t, 2.0, testutil.ToFloat64(repair.sharesFixed))
}
