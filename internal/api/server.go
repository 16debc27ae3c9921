// Package api implements the HTTP layer for the checkout notification service.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nyashahama/maison-checkout-notifier/internal/checkout"
	"github.com/nyashahama/maison-checkout-notifier/internal/health"
	"github.com/nyashahama/maison-checkout-notifier/internal/inbound"
	"github.com/nyashahama/maison-checkout-notifier/internal/metrics"
	"github.com/nyashahama/maison-checkout-notifier/internal/tracking"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string

	// AllowedOrigin is the storefront origin sent in CORS responses. "*"
	// reflects the request origin outside production.
	AllowedOrigin string

	// WebhookTimeout bounds processing of one lifecycle event. Default: 10s.
	WebhookTimeout time.Duration
}

// ─── DEPENDENCIES ─────────────────────────────────────────────────────────────

// Notifier sends the order confirmation for one checkout.
type Notifier interface {
	Notify(ctx context.Context, req checkout.Request) (checkout.Result, error)
}

// EventReceiver applies delivery lifecycle events and pixel opens.
type EventReceiver interface {
	Handle(ctx context.Context, ev tracking.Event) tracking.Outcome
	RecordPixelOpen(ctx context.Context, sendID uuid.UUID) tracking.Outcome
}

// InboundLogger records a received message.
type InboundLogger interface {
	Log(ctx context.Context, msg inbound.Message)
}

// TokenVerifier resolves a bearer token to its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

var (
	_ Notifier      = (*checkout.Notifier)(nil)
	_ EventReceiver = (*tracking.Receiver)(nil)
	_ InboundLogger = (*inbound.Logger)(nil)
)

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	notifier Notifier
	receiver EventReceiver
	inbound  InboundLogger
	verifier TokenVerifier

	// health serves /healthz and /readyz. Nil answers 200 on both.
	health *health.Checker

	// metrics is nil-safe; a nil value disables /metrics.
	metrics *metrics.Metrics

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.Server.
func NewServer(
	notifier Notifier,
	receiver EventReceiver,
	inboundLogger InboundLogger,
	verifier TokenVerifier,
	checker *health.Checker,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 10 * time.Second
	}

	s := &Server{
		notifier: notifier,
		receiver: receiver,
		inbound:  inboundLogger,
		verifier: verifier,
		health:   checker,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.metrics.Middleware)

	// Everything except the lifecycle webhook, which must answer 200 even
	// when it panics or runs out of time.
	standard := func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(30 * time.Second))
	}

	// ── Health ────────────────────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		standard(r)
		if s.health != nil {
			r.Get("/healthz", s.health.Liveness)
			r.Get("/readyz", s.health.Readiness)
		} else {
			ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
			r.Get("/healthz", ok)
			r.Get("/readyz", ok)
		}
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
	})

	// ── API ───────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			standard(r)

			// Checkout trigger — storefront session bearer token required.
			r.With(s.requireBearer).Post("/checkout", s.handleCheckout)

			// Inbound messages — no auth; 500 asks Resend to retry.
			r.Post("/webhooks/inbound", s.handleInboundWebhook)

			// Open-tracking pixel — no auth (opaque send id in URL).
			r.Get("/track/open/{sendID}", s.handleTrackOpen)
		})

		// Delivery lifecycle webhook — no auth; always acknowledged.
		r.With(s.acknowledgeOnPanic).Post("/webhooks/resend", s.handleResendWebhook)
	})

	return r
}
