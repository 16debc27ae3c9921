package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/nyashahama/maison-checkout-notifier/internal/api"
	"github.com/nyashahama/maison-checkout-notifier/internal/auth"
	"github.com/nyashahama/maison-checkout-notifier/internal/checkout"
	"github.com/nyashahama/maison-checkout-notifier/internal/config"
	"github.com/nyashahama/maison-checkout-notifier/internal/db"
	"github.com/nyashahama/maison-checkout-notifier/internal/email"
	"github.com/nyashahama/maison-checkout-notifier/internal/health"
	"github.com/nyashahama/maison-checkout-notifier/internal/inbound"
	"github.com/nyashahama/maison-checkout-notifier/internal/logging"
	"github.com/nyashahama/maison-checkout-notifier/internal/metrics"
	"github.com/nyashahama/maison-checkout-notifier/internal/ratelimit"
	"github.com/nyashahama/maison-checkout-notifier/internal/store"
	"github.com/nyashahama/maison-checkout-notifier/internal/tracking"
	"github.com/nyashahama/maison-checkout-notifier/internal/worker"
)

func main() {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development; errors also go to
	// Sentry when SENTRY_DSN is set.
	logger, flush := logging.New(logging.Config{
		Env:       cfg.Env,
		SentryDSN: cfg.SentryDSN,
		Release:   cfg.Release,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		flush(2 * time.Second)
		os.Exit(1)
	}
	flush(2 * time.Second)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port)

	// Root context cancelled by OS signal. Every server and the worker pool
	// respect it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ─────────────────────────────────────────────────────────────────
	repo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore()

	// ── Metrics ───────────────────────────────────────────────────────────────
	m := metrics.New()

	// ── Email (Resend) ────────────────────────────────────────────────────────
	sender, err := email.NewResendSender(email.ResendConfig{
		APIKey:  cfg.ResendAPIKey,
		BaseURL: cfg.ResendBaseURL,
		Timeout: cfg.DeliveryTimeout,
	})
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	// ── Rate limiting ─────────────────────────────────────────────────────────
	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()

		rl, err := ratelimit.NewRedisLimiter(rdb, cfg.CheckoutRateLimit, cfg.CheckoutRateWindow)
		if err != nil {
			return fmt.Errorf("ratelimit: %w", err)
		}
		limiter = rl
		logger.Info("ratelimit: redis limiter enabled",
			"limit", cfg.CheckoutRateLimit,
			"window", cfg.CheckoutRateWindow,
		)
	}

	// ── Worker (record retries) ───────────────────────────────────────────────
	runnerCfg := worker.DefaultRunnerConfig()
	runnerCfg.Workers = cfg.RecordRetryWorkers
	runnerCfg.MaxRetries = cfg.RecordRetryMax
	runner := worker.NewRunner(worker.NewJob(repo, logger), runnerCfg, m, logger)

	// ── Domain services ───────────────────────────────────────────────────────
	notifier := checkout.NewNotifier(repo, sender, checkout.Config{
		FromAddress:       cfg.EmailFromAddr,
		FromName:          cfg.EmailFromName,
		Subject:           cfg.EmailSubject,
		StoreName:         cfg.StoreName,
		TrackingBaseURL:   cfg.TrackingBaseURL(),
		RecipientOverride: cfg.RecipientOverride,
	}, logger,
		checkout.WithLimiter(limiter),
		checkout.WithRetry(runner), // *Runner satisfies worker.Enqueuer
		checkout.WithMetrics(m),
	)
	if cfg.RecipientOverride != "" {
		logger.Warn("checkout: recipient override active; customers will not receive their emails",
			"recipient", cfg.RecipientOverride,
		)
	}

	receiver := tracking.NewReceiver(repo, m, logger)
	inboundLogger := inbound.NewLogger(m, logger)

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	checker := health.New(repo)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		notifier,
		receiver,
		inboundLogger,
		verifier,
		checker,
		m,
		api.Config{
			Env:           cfg.Env,
			AllowedOrigin: cfg.AllowedOrigin,
		},
		logger,
	)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// ── gRPC server (health only) ─────────────────────────────────────────────
	grpcSrv := grpc.NewServer()
	checker.Register(grpcSrv)

	// ── Listener: HTTP and gRPC share one port ────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := mux.Match(cmux.Any())

	g, gctx := errgroup.WithContext(ctx)

	// The runner outlives the HTTP drain below: requests finishing during
	// shutdown may still hand it records.
	runnerCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	g.Go(func() error {
		runner.Start(runnerCtx)
		return nil
	})

	g.Go(func() error {
		if err := grpcSrv.Serve(grpcL); err != nil && gctx.Err() == nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && gctx.Err() == nil {
			return fmt.Errorf("listener: %w", err)
		}
		return nil
	})

	checker.SetServing(true)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Runs when a signal arrives or any server above dies.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// Fail readiness first so the load balancer stops routing to us.
		checker.Shutdown()

		// Give in-flight HTTP requests up to 20 seconds to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		_ = lis.Close()

		// No request can enqueue now. In-flight retries are cut short and
		// anything still queued is logged as lost.
		stopRunner()

		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore returns the Postgres store, or the in-memory store when no
// DATABASE_URL is configured outside production. Migrations run on start
// unless MIGRATE_ON_START=false.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("store: DATABASE_URL not set, using in-memory store; records are lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connected")

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
	}

	return store.New(pool, db.New(pool)), func() { _ = pool.Close() }, nil
}
