// Package record implements the durable job record store: one JSON record
// per job id in Redis, with a fixed time-to-live from creation.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akazachkov/queryflow/pkg/models"
)

// Store is the job record store interface. Implementations must be safe for
// concurrent use; only one worker writes a given job's record at a time
// (enforced by the queue's single-delivery semantics), so writes are plain
// upserts with last-write-wins under redelivery.
type Store interface {
	Put(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// JobKey builds the Redis key for a job record.
func JobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// RedisStore implements Store using go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore from a Redis URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps
// ownership of the client; Close is a no-op path for it.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Put upserts the whole record. The TTL is anchored to the record's
// ExpiresAt, so later writes never extend the original deadline.
func (s *RedisStore) Put(ctx context.Context, job *models.Job) error {
	ttl := time.Until(job.ExpiresAt)
	if ttl <= 0 {
		// Already past its deadline; nothing to persist.
		return nil
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	if err := s.client.Set(ctx, JobKey(job.ID), b, ttl).Err(); err != nil {
		return fmt.Errorf("write job record: %w", err)
	}
	return nil
}

// IncrWithExpiry atomically increments a counter and refreshes its expiry.
// Used by the rate-limit middleware; kept on the store because it owns the
// process-wide Redis handle.
func (s *RedisStore) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Get reads a job record. A missing (possibly expired) record returns
// found=false with a nil error.
func (s *RedisStore) Get(ctx context.Context, jobID string) (*models.Job, bool, error) {
	b, err := s.client.Get(ctx, JobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read job record: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, false, fmt.Errorf("decode job record: %w", err)
	}
	return &job, true, nil
}
