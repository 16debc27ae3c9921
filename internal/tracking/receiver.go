// Package tracking applies delivery lifecycle events to SendRecords.
//
// Only opens mutate state. Every other event is logged. Nothing here returns
// an error to the webhook caller; failures go to the log (and from there to
// Sentry) and the HTTP layer always acknowledges.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/maison-checkout-notifier/internal/metrics"
	"github.com/nyashahama/maison-checkout-notifier/internal/store"
)

// ErrUnmatchedCorrelation marks an open for a message no SendRecord knows.
// It happens legitimately when the record insert failed after the send.
var ErrUnmatchedCorrelation = errors.New("tracking: no send record for message")

// OpenRecorder is the subset of store.Repository the receiver uses.
type OpenRecorder interface {
	RecordOpenByProviderID(ctx context.Context, providerMessageID string, at time.Time) (store.SendRecord, error)
	RecordOpenBySendID(ctx context.Context, sendID uuid.UUID, at time.Time) (store.SendRecord, error)
}

// Outcome is what happened to one event.
type Outcome string

const (
	OutcomeLogged    Outcome = "logged"
	OutcomeApplied   Outcome = "applied"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnknown   Outcome = "unknown_type"
)

// Receiver applies events to the store.
type Receiver struct {
	store   OpenRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	timeout time.Duration
}

// NewReceiver constructs a Receiver. m may be nil.
func NewReceiver(st OpenRecorder, m *metrics.Metrics, logger *slog.Logger) *Receiver {
	return &Receiver{
		store:   st,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		timeout: 5 * time.Second,
	}
}

// Handle processes one lifecycle event.
//
// The open timestamp is the time the event is processed here, so openedAt
// belongs to the first event to arrive and lastOpenedAt to the last, no
// matter what times the provider declared.
func (r *Receiver) Handle(ctx context.Context, ev Event) Outcome {
	log := r.logger.With(
		"event_type", string(ev.Type),
		"provider_message_id", ev.Data.EmailID,
	)
	if at := ev.DeclaredAt(); !at.IsZero() {
		log = log.With("declared_at", at)
	}

	var out Outcome
	switch ev.Type {
	case EventOpened:
		var rec store.SendRecord
		rec, out = r.applyOpen(ctx, log, "webhook", func(ctx context.Context, at time.Time) (store.SendRecord, error) {
			return r.store.RecordOpenByProviderID(ctx, ev.Data.EmailID, at)
		})
		if out == OutcomeApplied {
			log.Info("tracking: open recorded",
				"send_id", rec.SendID,
				"opened_count", rec.OpenedCount,
				"first_open", rec.OpenedCount == 1,
			)
		}

	case EventSent, EventDelivered, EventClicked, EventBounced, EventComplained:
		// No state change defined for these yet.
		level := slog.LevelInfo
		if ev.Type == EventBounced || ev.Type == EventComplained {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "tracking: lifecycle event", "to", ev.Data.To, "subject", ev.Data.Subject)
		out = OutcomeLogged

	default:
		log.Info("tracking: unhandled event type")
		out = OutcomeUnknown
	}

	r.metrics.IncWebhookEvent(string(ev.Type), string(out))
	return out
}

// RecordPixelOpen records an open reported by the tracking pixel embedded
// in the message, keyed by the local send id.
func (r *Receiver) RecordPixelOpen(ctx context.Context, sendID uuid.UUID) Outcome {
	log := r.logger.With("send_id", sendID)
	rec, out := r.applyOpen(ctx, log, "pixel", func(ctx context.Context, at time.Time) (store.SendRecord, error) {
		return r.store.RecordOpenBySendID(ctx, sendID, at)
	})
	if out == OutcomeApplied {
		log.Info("tracking: pixel open recorded",
			"opened_count", rec.OpenedCount,
			"first_open", rec.OpenedCount == 1,
		)
	}
	return out
}

func (r *Receiver) applyOpen(
	ctx context.Context,
	log *slog.Logger,
	source string,
	record func(ctx context.Context, at time.Time) (store.SendRecord, error),
) (store.SendRecord, Outcome) {
	// The update must complete even if the caller hangs up.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	rec, err := record(uctx, r.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("tracking: open for unknown message", "source", source, "error", ErrUnmatchedCorrelation)
		return store.SendRecord{}, OutcomeUnmatched
	case err != nil:
		log.Error("tracking: failed to record open", "source", source, "error", err)
		return store.SendRecord{}, OutcomeFailed
	}

	r.metrics.IncOpen(source)
	return rec, OutcomeApplied
}
