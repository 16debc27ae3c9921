// Package metrics exposes the Prometheus collectors for the HTTP layer, the
// checkout notifier, the delivery event receiver and the record retry
// runner. Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout_notifier"

// Metrics stores the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	checkoutsTotal      *prometheus.CounterVec
	deliveryDuration    prometheus.Histogram
	webhookEventsTotal  *prometheus.CounterVec
	opensTotal          *prometheus.CounterVec
	recordRetriesTotal  *prometheus.CounterVec
	inboundTotal        *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		checkoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkouts_total",
				Help:      "Checkout notifications by result.",
			},
			[]string{"result"},
		),
		deliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_submit_duration_seconds",
				Help:      "Time spent submitting a message to the delivery service.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Delivery lifecycle events by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		opensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "opens_total",
				Help:      "Open events applied to send records, by source.",
			},
			[]string{"source"},
		),
		recordRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "record_retries_total",
				Help:      "Send records handed to the retry runner, by terminal outcome.",
			},
			[]string{"outcome"},
		),
		inboundTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_messages_total",
				Help:      "Inbound message webhooks by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.checkoutsTotal,
		m.deliveryDuration,
		m.webhookEventsTotal,
		m.opensTotal,
		m.recordRetriesTotal,
		m.inboundTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labelled by the chi route
// pattern, so /api/track/open/{sendID} is one series rather than one per id.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		// Avoid self-scrape noise.
		if route == "/metrics" {
			return
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) IncCheckout(result string) {
	if m == nil {
		return
	}
	m.checkoutsTotal.WithLabelValues(normalize(result)).Inc()
}

func (m *Metrics) ObserveDelivery(d time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.Observe(max(d.Seconds(), 0))
}

func (m *Metrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(normalize(eventType), normalize(outcome)).Inc()
}

func (m *Metrics) IncOpen(source string) {
	if m == nil {
		return
	}
	m.opensTotal.WithLabelValues(normalize(source)).Inc()
}

// ObserveRecordRetry satisfies worker.Observer.
func (m *Metrics) ObserveRecordRetry(outcome string) {
	if m == nil {
		return
	}
	m.recordRetriesTotal.WithLabelValues(normalize(outcome)).Inc()
}

func (m *Metrics) IncInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(normalize(outcome)).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func normalize(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return "unknown"
	}
	return l
}
