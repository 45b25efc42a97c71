// Package status reconciles the two independently-updated views of a job,
// the durable record store and the task queue's own bookkeeping, into one
// client-visible answer.
package status

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/akazachkov/queryflow/internal/queue"
	"github.com/akazachkov/queryflow/internal/record"
	"github.com/akazachkov/queryflow/pkg/models"
)

// Client-visible statuses.
const (
	Pending    = "pending"
	Processing = "processing"
	Completed  = "completed"
	Failed     = "failed"
)

// ClientStatus is the reconciled, client-visible state of one job.
type ClientStatus struct {
	Status   string
	Progress *models.Progress
	Result   json.RawMessage
	Message  string
}

// Resolve merges a possibly-absent store record with the queue's native
// state. Precedence: a terminal record is authoritative (its write
// happens-before the queue acknowledgment); a STARTED or PROCESSING record
// wins over any queue state; otherwise the queue view decides, and when both
// sources are silent the job reads as pending. An unknown id is
// indistinguishable from one whose first write is not yet visible.
func Resolve(rec *models.Job, qs queue.State) ClientStatus {
	if rec != nil {
		switch rec.Status {
		case models.JobStatusSuccess:
			return ClientStatus{Status: Completed, Result: rec.Result}
		case models.JobStatusFailure:
			cs := ClientStatus{Status: Failed, Message: "job failed"}
			if rec.Error != nil {
				cs.Message = rec.Error.Message
			}
			return cs
		case models.JobStatusStarted, models.JobStatusProcessing:
			return ClientStatus{Status: Processing, Progress: rec.Progress}
		}
		// A PENDING record says nothing the queue can't say better.
	}

	switch qs {
	case queue.StateSucceeded:
		return ClientStatus{Status: Completed}
	case queue.StateFailed:
		return ClientStatus{Status: Failed, Message: "job failed"}
	case queue.StateStarted:
		return ClientStatus{Status: Processing}
	default:
		return ClientStatus{Status: Pending}
	}
}

// Service is the read path behind the status endpoint. It is stateless and
// safe for concurrent use.
type Service struct {
	records record.Store
	queue   queue.Queue
}

func NewService(records record.Store, q queue.Queue) *Service {
	return &Service{records: records, queue: q}
}

// Get returns the reconciled status for a job id. Either source being
// unavailable degrades to the other; Get itself never fails, because a
// polling client needs an answer, not an error.
func (s *Service) Get(ctx context.Context, jobID string) ClientStatus {
	rec, found, err := s.records.Get(ctx, jobID)
	if err != nil {
		slog.Warn("record store unavailable, falling back to queue view",
			"job_id", jobID, "error", err)
		rec = nil
	} else if !found {
		rec = nil
	}

	// A terminal record answers without touching the queue.
	if rec != nil && rec.Terminal() {
		return Resolve(rec, queue.StateUnknown)
	}

	qs, err := s.queue.Status(ctx, jobID)
	if err != nil {
		slog.Warn("queue status unavailable", "job_id", jobID, "error", err)
		qs = queue.StateUnknown
	}
	return Resolve(rec, qs)
}
