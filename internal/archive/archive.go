// Package archive persists terminal jobs to Postgres for reporting beyond
// the record store's TTL.
package archive

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/akazachkov/queryflow/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Archive is the terminal-job data access interface.
type Archive interface {
	Ping(ctx context.Context) error
	// InsertTerminal upserts a terminal job row. Redelivery can finalize the
	// same job twice; the later write wins, matching the record store.
	InsertTerminal(ctx context.Context, job *models.ArchivedJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.ArchivedJob, error)
	ListRecent(ctx context.Context, limit int) ([]*models.ArchivedJob, error)
}
