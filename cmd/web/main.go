package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"trid/internal/config"
	"trid/internal/flow"
	"trid/internal/gateway"
	transporthttp "trid/internal/http"
	"trid/internal/oauth"
	"trid/internal/platform/database"
	"trid/internal/platform/logging"
	"trid/internal/platform/metrics"
	"trid/internal/platform/migrate"
	"trid/internal/platform/redis"
	"trid/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("trid web exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store, checks, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	backend := gateway.NewClient(cfg.BackendURL, &http.Client{Timeout: cfg.BackendTimeout},
		gateway.WithMetrics(m),
		gateway.WithLogger(logger),
	)
	sessions := session.NewManager(store, backend, cfg.SessionTTL, logger, m)
	flows := flow.NewRegistry(cfg.FlowIdleTTL, m)

	services := transporthttp.Services{
		Backend:  backend,
		Sessions: sessions,
		Flows:    flows,
		Metrics:  m,
		Checks:   checks,
	}
	if cfg.OAuthEnabled {
		services.OAuth = oauth.NewInitiator(cfg.BackendURL, cfg.FrontendURL, cfg.OAuthClientID)
	}
	router := transporthttp.NewRouter(cfg, services, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Trid web listening", "addr", srv.Addr, "store", cfg.DataStore, "backend", cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		runJanitor(gctx, cfg.SweepInterval, sessions, flows, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// runJanitor removes expired sessions and idle form machines until ctx is done.
func runJanitor(ctx context.Context, interval time.Duration, sessions *session.Manager, flows *flow.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.Sweep(ctx)
			if err != nil {
				logger.Error("sweep expired sessions", "error", err)
			}
			forms := flows.Sweep()
			if removed > 0 || forms > 0 {
				logger.Debug("janitor pass", "sessions_removed", removed, "forms_removed", forms)
			}
		}
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.Store, map[string]transporthttp.HealthCheck, func(), error) {
	switch cfg.DataStore {
	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			_ = db.Close()
		}

		if err := migrate.Apply(ctx, db, logger); err != nil {
			cleanup()
			return nil, nil, nil, err
		}

		logger.Info("connected to postgres")
		checks := map[string]transporthttp.HealthCheck{"postgres": db.PingContext}
		return session.NewPostgresStore(db), checks, cleanup, nil

	case "redis":
		client, err := redis.New(ctx, redis.Options{
			URL:          cfg.RedisURL,
			PoolSize:     20,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			_ = client.Close()
		}

		logger.Info("connected to redis")
		checks := map[string]transporthttp.HealthCheck{"redis": client.Health}
		return session.NewRedisStore(client.Client), checks, cleanup, nil

	default:
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil, nil, nil
	}
}
