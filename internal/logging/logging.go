// Package logging builds the process logger: JSON to stdout in production,
// text in development, optionally fanned out to Sentry.
//
// Sentry is the observability channel for failures that never reach a
// caller: webhook errors acknowledged with 200, and send records that could
// not be persisted after the email went out.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/go-chi/chi/v5/middleware"
)

// Config selects the output format and the optional Sentry sink.
type Config struct {
	Env       string
	SentryDSN string
	Release   string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// New returns the logger and a flush func that must run before exit so
// buffered Sentry events are delivered. flush is a no-op without a DSN.
func New(cfg Config) (*slog.Logger, func(timeout time.Duration)) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var base slog.Handler
	if cfg.Env == "production" {
		base = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		base = slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	noFlush := func(time.Duration) {}

	if cfg.SentryDSN == "" {
		return slog.New(withRequestID(base)), noFlush
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Env,
		Release:     cfg.Release,
		EnableLogs:  true,
	}); err != nil {
		// Degrade to local logging only.
		slog.New(base).Error("logging: sentry init failed", "error", err)
		return slog.New(withRequestID(base)), noFlush
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	logger := slog.New(withRequestID(newFanout(base, sentryHandler)))
	return logger, func(timeout time.Duration) { sentry.Flush(timeout) }
}

// ─── FAN-OUT ──────────────────────────────────────────────────────────────────

// fanout forwards each record to every handler that accepts its level.
type fanout struct {
	handlers []slog.Handler
}

func newFanout(handlers ...slog.Handler) slog.Handler {
	return &fanout{handlers: handlers}
}

func (h *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanout) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, rec.Level) {
			continue
		}
		// Keep going: a Sentry failure must not drop the stdout line.
		if err := handler.Handle(ctx, rec.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return newFanout(handlers...)
}

func (h *fanout) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return newFanout(handlers...)
}

// ─── REQUEST ID ───────────────────────────────────────────────────────────────

// requestIDHandler adds the chi request id to every record logged with a
// request context.
type requestIDHandler struct {
	next slog.Handler
}

func withRequestID(next slog.Handler) slog.Handler {
	return &requestIDHandler{next: next}
}

func (h *requestIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *requestIDHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ctx != nil {
		if id := middleware.GetReqID(ctx); id != "" {
			rec.AddAttrs(slog.String("request_id", id))
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *requestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &requestIDHandler{next: h.next.WithAttrs(attrs)}
}

func (h *requestIDHandler) WithGroup(name string) slog.Handler {
	return &requestIDHandler{next: h.next.WithGroup(name)}
}
