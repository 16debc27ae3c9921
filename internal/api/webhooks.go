package api

import (
	"context"
	"io"
	"net/http"

	"github.com/nyashahama/maison-checkout-notifier/internal/inbound"
	"github.com/nyashahama/maison-checkout-notifier/internal/tracking"
)

// ─── POST /api/webhooks/resend ────────────────────────────────────────────────

type webhookAck struct {
	Received  bool   `json:"received"`
	EventType string `json:"event_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleResendWebhook receives delivery lifecycle events.
//
// Resend retries any non-2xx delivery, and nothing this handler can fail on
// would succeed on a retry, so every request is acknowledged with 200.
// Failures surface through logs (error level reaches Sentry) and the
// webhook_events_total metric.
func (s *Server) handleResendWebhook(w http.ResponseWriter, r *http.Request) {
	// ── 1. Read and size-limit the body ───────────────────────────────────────
	r.Body = http.MaxBytesReader(w, r.Body, 65536) // 64 KB — lifecycle events are small
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("webhook: unreadable body", "error", err, logField(r))
		respond(w, http.StatusOK, webhookAck{Received: true, Error: "invalid payload"})
		return
	}

	// ── 2. Parse ──────────────────────────────────────────────────────────────
	ev, err := tracking.ParseEvent(body)
	if err != nil {
		s.logger.Warn("webhook: invalid payload", "error", err, logField(r))
		respond(w, http.StatusOK, webhookAck{Received: true, Error: "invalid payload"})
		return
	}

	// ── 3. Dispatch ───────────────────────────────────────────────────────────
	// The deadline only cuts the store call short; the answer is still 200.
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.WebhookTimeout)
	defer cancel()
	outcome := s.receiver.Handle(ctx, ev)
	s.logger.Debug("webhook: handled",
		"event_type", ev.Type,
		"outcome", outcome,
		logField(r),
	)

	respond(w, http.StatusOK, webhookAck{Received: true, EventType: string(ev.Type)})
}

// ─── POST /api/webhooks/inbound ───────────────────────────────────────────────

type inboundResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleInboundWebhook logs a message received on the store's inbound
// address. Unlike lifecycle events, a payload that cannot be parsed is
// answered with 500 so the provider keeps the message and retries.
func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("inbound: unreadable body", "error", err, logField(r))
		respond(w, http.StatusInternalServerError, inboundResponse{Error: err.Error()})
		return
	}

	msg, err := inbound.Parse(body)
	if err != nil {
		s.logger.Error("inbound: invalid payload", "error", err, logField(r))
		respond(w, http.StatusInternalServerError, inboundResponse{Error: err.Error()})
		return
	}

	s.inbound.Log(r.Context(), msg)

	respond(w, http.StatusOK, inboundResponse{
		Success: true,
		Message: "Email received and logged",
		From:    msg.From,
		Subject: msg.Subject,
	})
}
