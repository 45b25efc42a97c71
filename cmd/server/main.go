// Package main is the entrypoint for the QueryFlow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akazachkov/queryflow/internal/api"
	"github.com/akazachkov/queryflow/internal/api/handler"
	mw "github.com/akazachkov/queryflow/internal/api/middleware"
	"github.com/akazachkov/queryflow/internal/api/response"
	"github.com/akazachkov/queryflow/internal/archive"
	"github.com/akazachkov/queryflow/internal/config"
	"github.com/akazachkov/queryflow/internal/gateway"
	"github.com/akazachkov/queryflow/internal/queue"
	"github.com/akazachkov/queryflow/internal/record"
	"github.com/akazachkov/queryflow/internal/status"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "stream", cfg.Queue.Stream)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database and run migrations
	pool, err := archive.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := archive.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database connected, migrations applied")

	// 3. Connect to Redis: record store and task queue share the client
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	records := record.NewRedisStoreFromClient(client)
	if err := records.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	q, err := queue.NewRedisQueue(ctx, client, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.ReclaimIdle)
	if err != nil {
		return fmt.Errorf("create task queue: %w", err)
	}

	// 4. Build services
	arch := archive.NewPostgresArchive(pool)
	gw := gateway.New(records, q, cfg.Uploads.Dir, cfg.Worker.ResultTTL)
	reconciler := status.NewService(records, q)

	// 5. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(records, 60),

		HealthHandler: healthHandler(records, arch),
		SubmitHandler: handler.NewSubmitHandler(gw),
		PollHandler:   handler.NewPollHandler(reconciler),
		ListJobs:      handler.NewListJobsHandler(arch),
		GetJob:        handler.NewGetJobHandler(arch),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks record store and archive connectivity.
func healthHandler(records record.Store, arch archive.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"redis":    "ok",
			"database": "ok",
		}

		if err := records.Ping(r.Context()); err != nil {
			checks["redis"] = "degraded"
		}
		if err := arch.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}

		if checks["redis"] != "ok" || checks["database"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
