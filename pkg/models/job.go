package models

import (
	"encoding/json"
	"time"
)

// Job statuses as written by the worker. PENDING is set once at submission;
// STARTED, PROCESSING and the two terminal states are owned by the worker
// holding the queue delivery. SUCCESS and FAILURE are terminal.
const (
	JobStatusPending    = "PENDING"
	JobStatusStarted    = "STARTED"
	JobStatusProcessing = "PROCESSING"
	JobStatusSuccess    = "SUCCESS"
	JobStatusFailure    = "FAILURE"
)

// Input kinds accepted at submission. Exactly one is present per job.
const (
	InputKindAudio         = "audio"
	InputKindQuestionnaire = "questionnaire"
)

// Progress is incremental progress metadata, valid only while the job is
// PROCESSING. Each report from the processing callback overwrites the
// previous one.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// JobError captures a processing failure as data. Kind is the error's type
// name (or "panic"), Message its text.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is the per-job record persisted in the record store, keyed by ID.
// Result and Error are mutually exclusive and only set on terminal states.
// The record is evictable once ExpiresAt passes; readers must treat an
// absent record as pending-or-unknown, never as failure.
type Job struct {
	ID        string          `json:"id"`
	InputKind string          `json:"input_kind"`
	InputRef  string          `json:"input_ref,omitempty"`
	Status    string          `json:"status"`
	Progress  *Progress       `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *JobError       `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Terminal reports whether the job has reached SUCCESS or FAILURE.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusSuccess || j.Status == JobStatusFailure
}
