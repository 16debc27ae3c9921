package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectors(t *testing.T) {
	t.Parallel()

	m := New()
	m.IncCheckout("Sent")
	m.IncWebhookEvent("email.opened", "applied")
	m.IncOpen("webhook")
	m.ObserveRecordRetry("persisted")
	m.IncInbound("")
	m.ObserveDelivery(120 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("email.opened", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.opensTotal.WithLabelValues("webhook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordRetriesTotal.WithLabelValues("persisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inboundTotal.WithLabelValues("unknown")))
}

func TestMetricsNilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncCheckout("sent")
		m.ObserveDelivery(time.Second)
		m.IncWebhookEvent("email.opened", "applied")
		m.IncOpen("pixel")
		m.ObserveRecordRetry("dropped")
		m.IncInbound("logged")
	})

	rec := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	t.Parallel()

	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/track/open/{sendID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/track/open/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.httpRequestsTotal.WithLabelValues("GET", "/api/track/open/{sendID}", "200")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "checkout_notifier_http_requests_total"))
}
