package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akazachkov/queryflow/internal/gateway"
	"github.com/akazachkov/queryflow/internal/queue"
	"github.com/akazachkov/queryflow/internal/record"
	"github.com/akazachkov/queryflow/pkg/models"
)

type memRecords struct {
	mu   sync.Mutex
	jobs map[string]models.Job
	err  error
}

var _ record.Store = (*memRecords)(nil)

func newMemRecords() *memRecords {
	return &memRecords{jobs: make(map[string]models.Job)}
}

func (m *memRecords) Put(_ context.Context, job *models.Job) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memRecords) Get(_ context.Context, jobID string) (*models.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, false, nil
	}
	return &j, true, nil
}

func (m *memRecords) Ping(_ context.Context) error { return nil }
func (m *memRecords) Close() error                 { return nil }

type memQueue struct {
	mu       sync.Mutex
	enqueued map[string][]byte
	err      error
}

var _ queue.Queue = (*memQueue)(nil)

func newMemQueue() *memQueue {
	return &memQueue{enqueued: make(map[string][]byte)}
}

func (m *memQueue) Enqueue(_ context.Context, jobID string, payload []byte) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued[jobID] = payload
	return nil
}

func (m *memQueue) Deliver(_ context.Context, _ string) (*queue.Delivery, error) { return nil, nil }
func (m *memQueue) Ack(_ context.Context, _ *queue.Delivery) error               { return nil }
func (m *memQueue) Status(_ context.Context, _ string) (queue.State, error) {
	return queue.StateUnknown, nil
}

func TestSubmit_Questionnaire(t *testing.T) {
	records := newMemRecords()
	q := newMemQueue()
	gw := gateway.New(records, q, t.TempDir(), 24*time.Hour)

	jobID, err := gw.Submit(context.Background(), gateway.Submission{Questionnaire: "Q1"})
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(jobID))

	rec, found, err := records.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.JobStatusPending, rec.Status)
	assert.Equal(t, models.InputKindQuestionnaire, rec.InputKind)
	assert.WithinDuration(t, rec.CreatedAt.Add(24*time.Hour), rec.ExpiresAt, time.Second)

	var task models.TaskPayload
	require.NoError(t, json.Unmarshal(q.enqueued[jobID], &task))
	assert.Equal(t, jobID, task.JobID)
	assert.Equal(t, "Q1", task.Questionnaire)
}

func TestSubmit_AudioStagedUnderJobID(t *testing.T) {
	dir := t.TempDir()
	records := newMemRecords()
	q := newMemQueue()
	gw := gateway.New(records, q, dir, 24*time.Hour)

	jobID, err := gw.Submit(context.Background(), gateway.Submission{
		Audio:         strings.NewReader("riff-data"),
		AudioFilename: "session.wav",
	})
	require.NoError(t, err)

	path := filepath.Join(dir, jobID+"_session.wav")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "riff-data", string(data))

	var task models.TaskPayload
	require.NoError(t, json.Unmarshal(q.enqueued[jobID], &task))
	assert.Equal(t, models.InputKindAudio, task.InputKind)
	assert.Equal(t, path, task.AudioPath)
}

func TestSubmit_AudioFilenameStrippedOfPath(t *testing.T) {
	dir := t.TempDir()
	gw := gateway.New(newMemRecords(), newMemQueue(), dir, 24*time.Hour)

	jobID, err := gw.Submit(context.Background(), gateway.Submission{
		Audio:         strings.NewReader("x"),
		AudioFilename: "../../etc/passwd",
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, jobID+"_passwd"))
	assert.NoError(t, err, "upload must land inside the upload dir")
}

func TestSubmit_EnqueueFailureOrphansRecord(t *testing.T) {
	records := newMemRecords()
	q := newMemQueue()
	q.err = errors.New("stream unreachable")
	gw := gateway.New(records, q, t.TempDir(), 24*time.Hour)

	_, err := gw.Submit(context.Background(), gateway.Submission{Questionnaire: "Q1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrQueueUnavailable)

	// The PENDING record stays behind and will expire unclaimed.
	records.mu.Lock()
	defer records.mu.Unlock()
	require.Len(t, records.jobs, 1)
	for _, rec := range records.jobs {
		assert.Equal(t, models.JobStatusPending, rec.Status)
	}
}

func TestSubmit_RecordWriteFailure(t *testing.T) {
	records := newMemRecords()
	records.err = errors.New("redis down")
	q := newMemQueue()
	gw := gateway.New(records, q, t.TempDir(), 24*time.Hour)

	_, err := gw.Submit(context.Background(), gateway.Submission{Questionnaire: "Q1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, gateway.ErrQueueUnavailable)
	assert.Empty(t, q.enqueued, "nothing enqueued without an initial record")
}
