package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ArchivedJob is the durable row written to Postgres when a job reaches a
// terminal state. Unlike the Redis record it is not evicted by TTL, so it
// serves reporting queries after the live record expires. It is never
// consulted by the status reconciler.
type ArchivedJob struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	InputKind    string          `db:"input_kind"    json:"input_kind"`
	Status       string          `db:"status"        json:"status"`
	Result       json.RawMessage `db:"result"        json:"result,omitempty"`
	ErrorKind    *string         `db:"error_kind"    json:"error_kind,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	FinishedAt   time.Time       `db:"finished_at"   json:"finished_at"`
}
