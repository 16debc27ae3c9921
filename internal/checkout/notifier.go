// Package checkout sends the order confirmation for a completed checkout and
// records the send so later delivery events can be correlated with it.
//
// The order of steps is fixed: authorise, validate, resolve the profile,
// assign the send id, render, submit, persist. Nothing is submitted until
// every terminal check has passed, and a SendRecord is written only after
// the delivery service accepted the message.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/maison-checkout-notifier/internal/email"
	"github.com/nyashahama/maison-checkout-notifier/internal/metrics"
	"github.com/nyashahama/maison-checkout-notifier/internal/order"
	"github.com/nyashahama/maison-checkout-notifier/internal/ratelimit"
	"github.com/nyashahama/maison-checkout-notifier/internal/store"
	"github.com/nyashahama/maison-checkout-notifier/internal/worker"
)

// Store is the subset of store.Repository the notifier uses.
type Store interface {
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
	InsertSendRecord(ctx context.Context, rec store.SendRecord) (store.SendRecord, error)
}

// ─── INPUT / OUTPUT ───────────────────────────────────────────────────────────

// Request is one checkout notification.
type Request struct {
	// CallerID is the authenticated subject of the bearer credential.
	CallerID string
	// UserID is the id the storefront put in the payload. Empty means the
	// caller; anything else must equal CallerID.
	UserID     string
	Items      []order.LineItem
	TotalPrice float64
}

// Result describes an accepted send.
type Result struct {
	SendID            uuid.UUID
	ProviderMessageID string
	Recipient         string
	// Persisted is false when the record insert failed and was handed to
	// the retry runner (or dropped).
	Persisted bool
}

// Config is the static message configuration.
type Config struct {
	FromAddress string
	FromName    string
	Subject     string
	StoreName   string

	// TrackingBaseURL enables the open-tracking pixel when set, e.g.
	// "https://api.maison.example".
	TrackingBaseURL string

	// RecipientOverride, when set, receives every message instead of the
	// profile address. The record snapshots the address actually used.
	RecipientOverride string

	// PersistTimeout bounds the record insert. Default: 5s.
	PersistTimeout time.Duration
}

// From renders the sender as "Name <address>".
func (c Config) From() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return fmt.Sprintf("%s <%s>", c.FromName, c.FromAddress)
}

// ─── NOTIFIER ─────────────────────────────────────────────────────────────────

// Notifier runs the checkout notification flow.
type Notifier struct {
	store   Store
	sender  email.Sender
	cfg     Config
	logger  *slog.Logger
	limiter ratelimit.Limiter
	retry   worker.Enqueuer
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() uuid.UUID
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithLimiter throttles checkouts per user.
func WithLimiter(l ratelimit.Limiter) Option { return func(n *Notifier) { n.limiter = l } }

// WithRetry hands failed record inserts to e.
func WithRetry(e worker.Enqueuer) Option { return func(n *Notifier) { n.retry = e } }

func WithMetrics(m *metrics.Metrics) Option { return func(n *Notifier) { n.metrics = m } }

func WithClock(now func() time.Time) Option { return func(n *Notifier) { n.now = now } }

func WithIDGenerator(f func() uuid.UUID) Option { return func(n *Notifier) { n.newID = f } }

// NewNotifier constructs a Notifier.
func NewNotifier(st Store, sender email.Sender, cfg Config, logger *slog.Logger, opts ...Option) *Notifier {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	n := &Notifier{
		store:   st,
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		limiter: ratelimit.Noop{},
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends the order confirmation for req.
//
// Errors before submission match one of the terminal sentinels. A failed
// submission returns a *SubmissionError and leaves no record. A failed
// record insert is logged and does not fail the call.
func (n *Notifier) Notify(ctx context.Context, req Request) (Result, error) {
	res, err := n.notify(ctx, req)
	n.metrics.IncCheckout(resultLabel(err))
	return res, err
}

func (n *Notifier) notify(ctx context.Context, req Request) (Result, error) {
	// ── 1. Authorise ──────────────────────────────────────────────────────────
	userID, err := authorise(req)
	if err != nil {
		return Result{}, err
	}
	log := n.logger.With("user_id", userID)

	// ── 2. Validate the order ─────────────────────────────────────────────────
	if err := validate(req); err != nil {
		return Result{}, err
	}

	if err := n.throttle(ctx, userID, log); err != nil {
		return Result{}, err
	}

	// ── 3. Resolve the recipient ──────────────────────────────────────────────
	profile, err := n.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrProfileNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("checkout: resolve profile: %w", err)
	}
	recipient := strings.TrimSpace(profile.Email)
	if recipient == "" {
		return Result{}, ErrMissingContactAddress
	}
	if n.cfg.RecipientOverride != "" {
		recipient = n.cfg.RecipientOverride
	}
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = email.DefaultRecipientName
	}

	// ── 4. Assign the correlation key ─────────────────────────────────────────
	sendID := n.newID()
	log = log.With("send_id", sendID)

	// ── 5. Render ─────────────────────────────────────────────────────────────
	body, err := email.RenderOrderConfirmation(email.OrderView{
		StoreName:     n.cfg.StoreName,
		RecipientName: name,
		Items:         req.Items,
		Total:         req.TotalPrice,
		Year:          n.now().Year(),
		TrackingURL:   n.trackingURL(sendID),
	})
	if err != nil {
		return Result{}, fmt.Errorf("checkout: render: %w", err)
	}

	// ── 6. Submit (exactly once, never retried) ───────────────────────────────
	start := time.Now()
	providerID, err := n.sender.Send(ctx, email.Message{
		From:    n.cfg.From(),
		To:      []string{recipient},
		Subject: n.cfg.Subject,
		HTML:    body.HTML,
		Text:    body.Text,
		Tags: map[string]string{
			"send_id":  sendID.String(),
			"category": "order_confirmation",
		},
	})
	n.metrics.ObserveDelivery(time.Since(start))
	if err != nil {
		log.Warn("checkout: delivery submission failed", "error", err)
		return Result{}, &SubmissionError{Err: err}
	}
	sentAt := n.now()
	if providerID == "" {
		log.Warn("checkout: provider accepted message without an id; opens cannot be correlated by webhook")
	}

	// ── 7. Persist (non-fatal) ────────────────────────────────────────────────
	rec := store.SendRecord{
		SendID:            sendID,
		ProviderMessageID: providerID,
		UserID:            userID,
		Recipient:         recipient,
		RecipientName:     name,
		Subject:           n.cfg.Subject,
		OrderTotal:        req.TotalPrice,
		OrderItems:        req.Items,
		SentAt:            sentAt,
	}
	persisted := n.persist(ctx, rec, log)

	log.Info("checkout: confirmation sent",
		"provider_message_id", providerID,
		"items", len(req.Items),
		"persisted", persisted,
	)

	return Result{
		SendID:            sendID,
		ProviderMessageID: providerID,
		Recipient:         recipient,
		Persisted:         persisted,
	}, nil
}

// authorise returns the user the notification is for.
func authorise(req Request) (string, error) {
	if req.CallerID == "" {
		return "", ErrUnauthorized
	}
	if req.UserID != "" && req.UserID != req.CallerID {
		return "", fmt.Errorf("%w: payload user does not match credential", ErrUnauthorized)
	}
	return req.CallerID, nil
}

// validate checks the line items and recomputes the total in cents. The
// declared total must match the line items to the cent.
func validate(req Request) error {
	if err := order.Validate(req.Items); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	if req.TotalPrice < 0 || math.IsNaN(req.TotalPrice) || math.IsInf(req.TotalPrice, 0) {
		return fmt.Errorf("%w: total must be a non-negative amount", ErrInvalidOrder)
	}
	if order.Cents(req.TotalPrice) > order.MaxTotalCents {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, order.ErrOrderTooLarge)
	}
	computed := order.TotalCents(req.Items)
	if declared := order.Cents(req.TotalPrice); declared != computed {
		return fmt.Errorf("%w: declared %s, items sum to %s",
			ErrTotalMismatch, order.FormatCents(declared), order.FormatCents(computed))
	}
	return nil
}

// throttle fails open: a limiter outage must not block checkouts.
func (n *Notifier) throttle(ctx context.Context, userID string, log *slog.Logger) error {
	allowed, err := n.limiter.Allow(ctx, userID)
	if err != nil {
		log.Warn("checkout: rate limiter unavailable, allowing", "error", err)
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// persist writes rec detached from the request context: a client that hangs
// up after the email was accepted must not cancel the insert.
func (n *Notifier) persist(ctx context.Context, rec store.SendRecord, log *slog.Logger) bool {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.PersistTimeout)
	defer cancel()

	_, err := n.store.InsertSendRecord(pctx, rec)
	if err == nil || errors.Is(err, store.ErrDuplicate) {
		return true
	}

	log.Error("checkout: send record not persisted",
		"provider_message_id", rec.ProviderMessageID,
		"error", errors.Join(ErrRecordPersistenceFailed, err),
	)
	if n.retry == nil {
		return false
	}
	if qerr := n.retry.Enqueue(pctx, rec); qerr != nil {
		log.Error("checkout: send record dropped", "error", qerr)
	}
	return false
}

func (n *Notifier) trackingURL(sendID uuid.UUID) string {
	if n.cfg.TrackingBaseURL == "" {
		return ""
	}
	return strings.TrimRight(n.cfg.TrackingBaseURL, "/") + "/api/track/open/" + sendID.String()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrTotalMismatch):
		return "invalid"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrMissingContactAddress):
		return "no_recipient"
	case errors.Is(err, ErrDeliverySubmissionFailed):
		return "delivery_failed"
	default:
		return "error"
	}
}
