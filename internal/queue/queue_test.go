package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/akazachkov/queryflow/internal/queue"
)

// setupQueue spins up a Redis container and returns a ready queue.
func setupQueue(t *testing.T, reclaimIdle time.Duration) *queue.RedisQueue {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	opts, err := redis.ParseURL("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	q, err := queue.NewRedisQueue(ctx, client, "test:jobs", "test-workers", reclaimIdle)
	require.NoError(t, err)
	return q
}

func TestEnqueueDeliverAck_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t, 5*time.Minute)
	ctx := context.Background()
	jobID := uuid.NewString()

	require.NoError(t, q.Enqueue(ctx, jobID, []byte(`{"job_id":"x"}`)))

	st, err := q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatePending, st)

	d, err := q.Deliver(ctx, "consumer-1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, jobID, d.JobID)
	assert.Equal(t, `{"job_id":"x"}`, string(d.Payload))

	st, err = q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateStarted, st)

	require.NoError(t, q.Ack(ctx, d))

	st, err = q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateUnknown, st)
}

func TestStatus_UnknownJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t, 5*time.Minute)

	st, err := q.Status(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, queue.StateUnknown, st)
}

func TestDeliver_EmptyQueueReturnsNil(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t, 5*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	d, _ := q.Deliver(ctx, "consumer-1")
	assert.Nil(t, d)
}

func TestRedelivery_IdleMessageReclaimed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	// Short idle window so the crashed consumer's message is claimable fast.
	q := setupQueue(t, 100*time.Millisecond)
	ctx := context.Background()
	jobID := uuid.NewString()

	require.NoError(t, q.Enqueue(ctx, jobID, []byte("payload")))

	// consumer-1 takes the delivery and "crashes" without acking.
	d1, err := q.Deliver(ctx, "consumer-1")
	require.NoError(t, err)
	require.NotNil(t, d1)

	time.Sleep(200 * time.Millisecond)

	// consumer-2 reclaims the idle message.
	d2, err := q.Deliver(ctx, "consumer-2")
	require.NoError(t, err)
	require.NotNil(t, d2, "idle message should be redelivered")
	assert.Equal(t, jobID, d2.JobID)

	require.NoError(t, q.Ack(ctx, d2))
	st, err := q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateUnknown, st)
}

func TestDeliver_OneMessagePerConsumer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := setupQueue(t, 5*time.Minute)
	ctx := context.Background()

	idA := uuid.NewString()
	idB := uuid.NewString()
	require.NoError(t, q.Enqueue(ctx, idA, []byte("a")))
	require.NoError(t, q.Enqueue(ctx, idB, []byte("b")))

	dA, err := q.Deliver(ctx, "consumer-1")
	require.NoError(t, err)
	require.NotNil(t, dA)

	dB, err := q.Deliver(ctx, "consumer-2")
	require.NoError(t, err)
	require.NotNil(t, dB)

	assert.NotEqual(t, dA.JobID, dB.JobID, "each message goes to exactly one consumer")
}
