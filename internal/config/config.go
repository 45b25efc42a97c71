package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the QueryFlow server and worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Uploads  UploadsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	Stream string
	Group  string
	// ReclaimIdle is how long a delivered-but-unacknowledged message may sit
	// before another consumer claims it for redelivery.
	ReclaimIdle time.Duration
}

type WorkerConfig struct {
	Count int
	// MaxJobsPerWorker retires a worker after this many processed deliveries;
	// the supervisor spawns a replacement. Bounds leaked resources in the
	// processing callback.
	MaxJobsPerWorker int
	// ResultTTL is the lifetime of a job record from creation.
	ResultTTL time.Duration
}

type UploadsConfig struct {
	Dir string
	// MaxAge controls the periodic sweep of stale upload artifacts.
	MaxAge time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("QUERYFLOW_PORT", 8080),
			Env:  envString("QUERYFLOW_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Stream:      envString("QUEUE_STREAM", "queryflow:jobs"),
			Group:       envString("QUEUE_GROUP", "queryflow-workers"),
			ReclaimIdle: envDuration("QUEUE_RECLAIM_IDLE", 5*time.Minute),
		},
		Worker: WorkerConfig{
			Count:            envInt("WORKER_COUNT", 2),
			MaxJobsPerWorker: envInt("WORKER_MAX_JOBS", 200),
			ResultTTL:        envDuration("RESULT_TTL", 24*time.Hour),
		},
		Uploads: UploadsConfig{
			Dir:    envString("UPLOAD_DIR", "uploads"),
			MaxAge: envDuration("UPLOAD_MAX_AGE", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.Stream == "" || c.Queue.Group == "" {
		return fmt.Errorf("QUEUE_STREAM and QUEUE_GROUP must be non-empty")
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.Worker.Count)
	}
	if c.Worker.MaxJobsPerWorker < 1 {
		return fmt.Errorf("WORKER_MAX_JOBS must be at least 1, got %d", c.Worker.MaxJobsPerWorker)
	}
	if c.Worker.ResultTTL <= 0 {
		return fmt.Errorf("RESULT_TTL must be positive, got %s", c.Worker.ResultTTL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
