// Package worker retries SendRecord inserts that failed on the checkout path.
// The checkout notifier holds a worker.Enqueuer and calls Enqueue; it never
// imports the concrete Runner or Job types.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nyashahama/maison-checkout-notifier/internal/store"
)

// ErrQueueFull is returned by Enqueue when the buffer is saturated. The
// record is dropped; the caller logs it.
var ErrQueueFull = errors.New("worker: queue is full")

// ─── ENQUEUER INTERFACE ───────────────────────────────────────────────────────

// Enqueuer is the narrow interface the checkout notifier uses to hand off a
// record whose insert failed. In tests, any struct with an Enqueue method
// satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, rec store.SendRecord) error
}

// Observer receives the terminal outcome of every queued record. The metrics
// package implements it; nil disables observation.
type Observer interface {
	ObserveRecordRetry(outcome string)
}

// Outcomes passed to Observer.
const (
	OutcomePersisted = "persisted"
	OutcomeExhausted = "exhausted"
	OutcomeDropped   = "dropped"
)

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero fields take the
// values from DefaultRunnerConfig.
type RunnerConfig struct {
	// Workers is the number of concurrent retry goroutines. Default: 2.
	Workers int

	// QueueSize is the channel buffer. Default: 64.
	QueueSize int

	// MaxRetries is the number of attempts per record before giving up.
	// Default: 3.
	MaxRetries int

	// BaseBackoff is the wait after the first failed attempt; it doubles
	// after each subsequent failure. Default: 1s.
	BaseBackoff time.Duration

	// AttemptTimeout bounds each insert. Default: 5s.
	AttemptTimeout time.Duration
}

// DefaultRunnerConfig returns production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:        2,
		QueueSize:      64,
		MaxRetries:     3,
		BaseBackoff:    time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// Runner manages a pool of worker goroutines fed by an in-process channel.
type Runner struct {
	job      *Job
	cfg      RunnerConfig
	logger   *slog.Logger
	observer Observer

	queue chan store.SendRecord
	wg    sync.WaitGroup
}

// NewRunner constructs a Runner. Call Start to begin processing.
func NewRunner(job *Job, cfg RunnerConfig, observer Observer, logger *slog.Logger) *Runner {
	def := DefaultRunnerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}

	return &Runner{
		job:      job,
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		queue:    make(chan store.SendRecord, cfg.QueueSize),
	}
}

// Enqueue pushes rec onto the channel without blocking. A full queue returns
// ErrQueueFull rather than delaying the HTTP response.
func (r *Runner) Enqueue(_ context.Context, rec store.SendRecord) error {
	select {
	case r.queue <- rec:
		r.logger.Info("worker: enqueued send record", "send_id", rec.SendID)
		return nil
	default:
		r.observe(OutcomeDropped)
		return ErrQueueFull
	}
}

// Start launches the worker pool and blocks until ctx is cancelled and every
// goroutine has returned. Call it in a goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting", "workers", r.cfg.Workers, "max_retries", r.cfg.MaxRetries)

	for i := range r.cfg.Workers {
		r.wg.Add(1)
		go r.work(ctx, i)
	}

	r.wg.Wait()
	r.drain()
	r.logger.Info("worker: stopped")
}

// drain reports every record still queued once the workers have exited.
// Stop enqueueing (shut the HTTP server down) before cancelling the runner.
func (r *Runner) drain() {
	for {
		select {
		case rec := <-r.queue:
			r.logger.Error("worker: send record permanently lost",
				"send_id", rec.SendID,
				"provider_message_id", rec.ProviderMessageID,
				"user_id", rec.UserID,
				"error", "runner stopped before the record was retried",
			)
			r.observe(OutcomeExhausted)
		default:
			return
		}
	}
}

// work is the inner loop for each worker goroutine.
func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.logger.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-r.queue:
			r.runWithRetry(ctx, rec, log)
		}
	}
}

// runWithRetry executes the job up to MaxRetries times with exponential
// back-off between attempts.
func (r *Runner) runWithRetry(ctx context.Context, rec store.SendRecord, log *slog.Logger) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		// The insert outlives shutdown of the request that produced it, but
		// not shutdown of the runner.
		jobCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		lastErr = r.job.Run(jobCtx, rec)
		cancel()

		if lastErr == nil {
			log.Info("worker: send record persisted", "send_id", rec.SendID, "attempt", attempt)
			r.observe(OutcomePersisted)
			return
		}

		log.Warn("worker: persist attempt failed",
			"send_id", rec.SendID,
			"attempt", attempt,
			"max", r.cfg.MaxRetries,
			"error", lastErr,
		)

		if attempt < r.cfg.MaxRetries {
			// Exponential back-off: base, 2×base, 4×base …
			backoff := r.cfg.BaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				log.Error("worker: shutdown before send record persisted", "send_id", rec.SendID, "error", lastErr)
				r.observe(OutcomeExhausted)
				return
			case <-time.After(backoff):
			}
		}
	}

	log.Error("worker: send record permanently lost",
		"send_id", rec.SendID,
		"provider_message_id", rec.ProviderMessageID,
		"user_id", rec.UserID,
		"error", lastErr,
	)
	r.observe(OutcomeExhausted)
}

func (r *Runner) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveRecordRetry(outcome)
	}
}
