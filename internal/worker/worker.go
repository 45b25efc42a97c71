// Package worker implements the job execution loop: dequeue one message,
// drive the job record through STARTED → PROCESSING → terminal, acknowledge
// only after the terminal write lands.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akazachkov/queryflow/internal/archive"
	"github.com/akazachkov/queryflow/internal/process"
	"github.com/akazachkov/queryflow/internal/queue"
	"github.com/akazachkov/queryflow/internal/record"
	"github.com/akazachkov/queryflow/pkg/models"
)

const deliverRetryDelay = time.Second

// Worker consumes deliveries one at a time. It retires after MaxJobs
// processed deliveries; the pool spawns a replacement, bounding any
// resources leaked by the processing callback.
type Worker struct {
	queue     queue.Queue
	records   record.Store
	archive   archive.Archive
	processor process.Processor

	consumer  string
	maxJobs   int
	resultTTL time.Duration
}

func New(q queue.Queue, records record.Store, arch archive.Archive,
	p process.Processor, consumer string, maxJobs int, resultTTL time.Duration) *Worker {
	return &Worker{
		queue:     q,
		records:   records,
		archive:   arch,
		processor: p,
		consumer:  consumer,
		maxJobs:   maxJobs,
		resultTTL: resultTTL,
	}
}

// Run blocks on deliveries until the context is cancelled or the worker has
// processed its job quota. Returns nil on retirement.
func (w *Worker) Run(ctx context.Context) error {
	processed := 0
	for processed < w.maxJobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d, err := w.queue.Deliver(ctx, w.consumer)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("delivery failed", "consumer", w.consumer, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(deliverRetryDelay):
			}
			continue
		}
		if d == nil {
			continue
		}

		w.handle(ctx, d)
		processed++
	}
	slog.Info("worker retiring after job quota", "consumer", w.consumer, "processed", processed)
	return nil
}

// handle runs one delivery to a terminal state. Failures of the processing
// callback become FAILURE records and the message is acknowledged anyway:
// failed jobs are not retried, retry is a client-initiated resubmission. Only
// a failed terminal write leaves the message unacknowledged, so a crash here
// redelivers and the redelivery's own run overwrites (last writer wins).
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	var task models.TaskPayload
	if err := json.Unmarshal(d.Payload, &task); err != nil {
		slog.Error("undecodable task payload", "job_id", d.JobID, "error", err)
		rec := w.loadRecord(ctx, d.JobID)
		rec.Status = models.JobStatusFailure
		rec.Error = &models.JobError{Kind: errKind(err), Message: err.Error()}
		w.finalize(ctx, d, rec)
		return
	}

	rec := w.loadRecord(ctx, d.JobID)
	rec.InputKind = task.InputKind
	rec.Status = models.JobStatusStarted
	if err := w.records.Put(ctx, rec); err != nil {
		// Non-fatal: the queue's own view still reads started.
		slog.Warn("started write failed", "job_id", d.JobID, "error", err)
	}
	slog.Info("job started", "job_id", d.JobID, "input_kind", task.InputKind, "consumer", w.consumer)

	result, err := w.invoke(ctx, task, rec)
	if err != nil {
		rec.Status = models.JobStatusFailure
		rec.Progress = nil
		rec.Error = &models.JobError{Kind: errKind(err), Message: err.Error()}
		slog.Error("job failed", "job_id", d.JobID, "kind", rec.Error.Kind, "error", err)
		// The input artifact is kept for inspection on failure.
		w.finalize(ctx, d, rec)
		return
	}

	rec.Status = models.JobStatusSuccess
	rec.Progress = nil
	rec.Error = nil
	rec.Result = result
	if w.finalize(ctx, d, rec) {
		w.removeArtifact(task)
		slog.Info("job completed", "job_id", d.JobID, "consumer", w.consumer)
	}
}

// invoke runs the processing callback with a progress reporter. A panic in
// the callback is captured as an error rather than crashing the loop.
func (w *Worker) invoke(ctx context.Context, task models.TaskPayload, rec *models.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("processor panic", "job_id", task.JobID,
				"panic", r, "stack", string(debug.Stack()))
			err = &panicError{value: r}
		}
	}()

	report := func(current, total int, message string) {
		rec.Status = models.JobStatusProcessing
		rec.Progress = &models.Progress{Current: current, Total: total, Message: message}
		// Best-effort: a lost progress update is never fatal to the job.
		if perr := w.records.Put(ctx, rec); perr != nil {
			slog.Warn("progress write failed", "job_id", task.JobID, "error", perr)
		}
	}

	return w.processor.Execute(ctx, task, report)
}

// finalize writes the terminal record, archives it, and acknowledges the
// delivery. The record write happens-before the ack; if it fails the message
// stays pending and is redelivered. Reports whether the terminal write stuck.
func (w *Worker) finalize(ctx context.Context, d *queue.Delivery, rec *models.Job) bool {
	if err := w.records.Put(ctx, rec); err != nil {
		slog.Error("terminal write failed, leaving message for redelivery",
			"job_id", rec.ID, "status", rec.Status, "error", err)
		return false
	}

	w.archiveTerminal(ctx, rec)

	if err := w.queue.Ack(ctx, d); err != nil {
		slog.Error("ack failed", "job_id", rec.ID, "error", err)
	}
	return true
}

func (w *Worker) archiveTerminal(ctx context.Context, rec *models.Job) {
	if w.archive == nil {
		return
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		slog.Warn("unarchivable job id", "job_id", rec.ID, "error", err)
		return
	}
	row := &models.ArchivedJob{
		ID:         id,
		InputKind:  rec.InputKind,
		Status:     rec.Status,
		Result:     rec.Result,
		CreatedAt:  rec.CreatedAt,
		FinishedAt: time.Now().UTC(),
	}
	if rec.Error != nil {
		row.ErrorKind = &rec.Error.Kind
		row.ErrorMessage = &rec.Error.Message
	}
	if err := w.archive.InsertTerminal(ctx, row); err != nil {
		slog.Warn("archive write failed", "job_id", rec.ID, "error", err)
	}
}

// loadRecord fetches the gateway-created record, or rebuilds a skeleton when
// it is missing (expired, or redelivery after TTL).
func (w *Worker) loadRecord(ctx context.Context, jobID string) *models.Job {
	rec, found, err := w.records.Get(ctx, jobID)
	if err != nil {
		slog.Warn("record read failed", "job_id", jobID, "error", err)
	}
	if err == nil && found {
		return rec
	}
	now := time.Now().UTC()
	return &models.Job{
		ID:        jobID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(w.resultTTL),
	}
}

// removeArtifact deletes the temporary audio upload after success.
func (w *Worker) removeArtifact(task models.TaskPayload) {
	if task.InputKind != models.InputKindAudio || task.AudioPath == "" {
		return
	}
	if err := os.Remove(task.AudioPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("artifact cleanup failed", "job_id", task.JobID,
			"path", task.AudioPath, "error", err)
	}
}

// panicError wraps a recovered panic value from the processing callback.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// errKind derives a stable error classification from the concrete type name.
func errKind(err error) string {
	if _, ok := err.(*panicError); ok {
		return "panic"
	}
	kind := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if kind == "errors.errorString" || kind == "fmt.wrapError" {
		return "error"
	}
	return kind
}
