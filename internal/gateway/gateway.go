// Package gateway implements job submission: identity assignment, artifact
// staging, the initial PENDING record, and the enqueue handoff.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/akazachkov/queryflow/internal/queue"
	"github.com/akazachkov/queryflow/internal/record"
	"github.com/akazachkov/queryflow/pkg/models"
)

// ErrQueueUnavailable means the initial record was written but the enqueue
// could not be confirmed. The caller should retry the whole submission; the
// orphaned PENDING record ages out with its TTL.
var ErrQueueUnavailable = errors.New("task queue unavailable")

// Submission is a validated job submission. Exactly one input kind is set;
// the handler enforces mutual exclusivity before calling Submit.
type Submission struct {
	Audio         io.Reader
	AudioFilename string
	Questionnaire string
}

// Gateway registers new jobs. Stateless and safe for concurrent use.
type Gateway struct {
	records   record.Store
	queue     queue.Queue
	uploadDir string
	resultTTL time.Duration
}

func New(records record.Store, q queue.Queue, uploadDir string, resultTTL time.Duration) *Gateway {
	return &Gateway{
		records:   records,
		queue:     q,
		uploadDir: uploadDir,
		resultTTL: resultTTL,
	}
}

// Submit assigns a job id, stages the audio artifact if present, persists
// the PENDING record, and enqueues the task. It returns as soon as the queue
// accepts the message; processing happens asynchronously.
func (g *Gateway) Submit(ctx context.Context, sub Submission) (string, error) {
	jobID := uuid.NewString()

	task := models.TaskPayload{JobID: jobID}
	if sub.Audio != nil {
		path, err := g.stageAudio(jobID, sub)
		if err != nil {
			return "", fmt.Errorf("stage audio: %w", err)
		}
		task.InputKind = models.InputKindAudio
		task.AudioPath = path
	} else {
		task.InputKind = models.InputKindQuestionnaire
		task.Questionnaire = sub.Questionnaire
	}

	now := time.Now().UTC()
	rec := &models.Job{
		ID:        jobID,
		InputKind: task.InputKind,
		InputRef:  task.AudioPath,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(g.resultTTL),
	}
	if err := g.records.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	if err := g.queue.Enqueue(ctx, jobID, payload); err != nil {
		// The PENDING record is left behind; it expires unclaimed.
		slog.Error("enqueue failed, record orphaned until TTL",
			"job_id", jobID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	slog.Info("job submitted", "job_id", jobID, "input_kind", task.InputKind)
	return jobID, nil
}

func (g *Gateway) stageAudio(jobID string, sub Submission) (string, error) {
	if err := os.MkdirAll(g.uploadDir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(sub.AudioFilename)
	if name == "." || name == string(filepath.Separator) {
		name = "audio"
	}
	path := filepath.Join(g.uploadDir, fmt.Sprintf("%s_%s", jobID, name))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, sub.Audio); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
