// Package queue implements the task queue on a Redis Stream with a consumer
// group. Delivery is at-least-once: a message stays in the group's pending
// list until acknowledged, and entries idle past the reclaim window are
// claimed by another consumer. Consumers must therefore tolerate re-invoking
// the processing callback for the same job id.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the queue's native view of one job's message, independent of the
// record store. It is a coarse signal used only as a reconciliation fallback.
type State string

const (
	// StateUnknown means the queue holds no bookkeeping for the job id:
	// never enqueued, or already acknowledged.
	StateUnknown State = "unknown"
	// StatePending means the message is enqueued but not yet delivered.
	StatePending State = "pending"
	// StateStarted means the message has been delivered to a consumer and
	// is awaiting acknowledgment.
	StateStarted State = "started"
	// StateSucceeded and StateFailed exist for brokers whose bookkeeping
	// retains terminal outcomes. The stream queue never reports them: once
	// acknowledged, an entry is gone and the record store is authoritative.
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Delivery is one dequeued message plus the handle needed to acknowledge it.
type Delivery struct {
	JobID   string
	Payload []byte
	entryID string
}

// Queue is the task queue interface.
type Queue interface {
	Enqueue(ctx context.Context, jobID string, payload []byte) error
	// Deliver blocks up to the configured poll interval for one message.
	// It returns (nil, nil) when no message arrived; callers loop.
	Deliver(ctx context.Context, consumer string) (*Delivery, error)
	// Ack removes the message from the queue's bookkeeping. Called only
	// after the job's terminal record write (late ack).
	Ack(ctx context.Context, d *Delivery) error
	Status(ctx context.Context, jobID string) (State, error)
}

const deliverBlock = 5 * time.Second

// RedisQueue implements Queue on a Redis Stream via go-redis/v9.
type RedisQueue struct {
	client      *redis.Client
	stream      string
	group       string
	reclaimIdle time.Duration
}

// NewRedisQueue creates the consumer group if it does not exist yet and
// returns a ready queue. Safe to call from multiple processes.
func NewRedisQueue(ctx context.Context, client *redis.Client, stream, group string, reclaimIdle time.Duration) (*RedisQueue, error) {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &RedisQueue{
		client:      client,
		stream:      stream,
		group:       group,
		reclaimIdle: reclaimIdle,
	}, nil
}

func (q *RedisQueue) indexKey() string {
	return q.stream + ":index"
}

// Enqueue appends the message to the stream and records the job id → entry id
// mapping used by Status. The entry id is only known after XADD, so the two
// writes are sequential; a crash in between leaves a deliverable message
// whose Status reads unknown, which reconciliation already tolerates.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, payload []byte) error {
	entryID, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"job_id":  jobID,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	if err := q.client.HSet(ctx, q.indexKey(), jobID, entryID).Err(); err != nil {
		return fmt.Errorf("index job %s: %w", jobID, err)
	}
	return nil
}

// Deliver claims one message for the named consumer: first any entry another
// consumer left idle past the reclaim window (crash redelivery), otherwise a
// blocking read of the next new entry.
func (q *RedisQueue) Deliver(ctx context.Context, consumer string) (*Delivery, error) {
	if d, err := q.reclaim(ctx, consumer); err != nil || d != nil {
		return d, err
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    deliverBlock,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group: %w", err)
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			return deliveryFromMessage(msg)
		}
	}
	return nil, nil
}

func (q *RedisQueue) reclaim(ctx context.Context, consumer string) (*Delivery, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.reclaimIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reclaim idle entries: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return deliveryFromMessage(msgs[0])
}

func deliveryFromMessage(msg redis.XMessage) (*Delivery, error) {
	jobID, _ := msg.Values["job_id"].(string)
	payload, _ := msg.Values["payload"].(string)
	if jobID == "" {
		return nil, fmt.Errorf("stream entry %s has no job_id", msg.ID)
	}
	return &Delivery{
		JobID:   jobID,
		Payload: []byte(payload),
		entryID: msg.ID,
	}, nil
}

// Ack acknowledges and drops the entry, and removes the status index. After
// Ack, Status for this job id reads unknown.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.entryID == "" {
		return errors.New("ack: empty delivery")
	}
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.stream, q.group, d.entryID)
	pipe.XDel(ctx, q.stream, d.entryID)
	pipe.HDel(ctx, q.indexKey(), d.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack job %s: %w", d.JobID, err)
	}
	return nil
}

// Status reports the queue's native view of a job's message.
func (q *RedisQueue) Status(ctx context.Context, jobID string) (State, error) {
	entryID, err := q.client.HGet(ctx, q.indexKey(), jobID).Result()
	if err == redis.Nil {
		return StateUnknown, nil
	}
	if err != nil {
		return StateUnknown, fmt.Errorf("queue status for %s: %w", jobID, err)
	}

	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  entryID,
		End:    entryID,
		Count:  1,
	}).Result()
	if err != nil && err != redis.Nil {
		return StateUnknown, fmt.Errorf("queue status for %s: %w", jobID, err)
	}
	if len(pending) > 0 {
		return StateStarted, nil
	}
	return StatePending, nil
}
