// Package main is the entrypoint for the QueryFlow worker process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akazachkov/queryflow/internal/archive"
	"github.com/akazachkov/queryflow/internal/config"
	"github.com/akazachkov/queryflow/internal/process"
	"github.com/akazachkov/queryflow/internal/queue"
	"github.com/akazachkov/queryflow/internal/record"
	"github.com/akazachkov/queryflow/internal/worker"
)

const uploadSweepInterval = time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"workers", cfg.Worker.Count,
		"max_jobs_per_worker", cfg.Worker.MaxJobsPerWorker,
		"stream", cfg.Queue.Stream)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := archive.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := archive.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

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

	arch := archive.NewPostgresArchive(pool)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	// The stub processor stands in for the STT/retrieval pipeline.
	workers := worker.NewPool(worker.PoolConfig{
		Count:            cfg.Worker.Count,
		MaxJobsPerWorker: cfg.Worker.MaxJobsPerWorker,
		ResultTTL:        cfg.Worker.ResultTTL,
		ConsumerPrefix:   hostname,
	}, q, records, arch, process.NewStubProcessor())

	go sweepUploads(ctx, cfg.Uploads.Dir, cfg.Uploads.MaxAge)

	slog.Info("worker pool starting", "consumer_prefix", hostname)
	workers.Run(ctx)
	slog.Info("worker pool drained, exiting")
	return nil
}

// sweepUploads periodically deletes stale upload artifacts: files left by
// failed jobs after inspection time, and uploads orphaned by enqueue
// failures.
func sweepUploads(ctx context.Context, dir string, maxAge time.Duration) {
	ticker := time.NewTicker(uploadSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("upload sweep failed", "dir", dir, "error", err)
			}
			continue
		}
		cutoff := time.Now().Add(-maxAge)
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(dir, e.Name())
				if err := os.Remove(path); err != nil {
					slog.Warn("stale upload removal failed", "path", path, "error", err)
				} else {
					slog.Info("stale upload removed", "path", path)
				}
			}
		}
	}
}
