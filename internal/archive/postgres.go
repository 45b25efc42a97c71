package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akazachkov/queryflow/pkg/models"
)

// PostgresArchive implements the Archive interface using pgx/v5.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a new PostgresArchive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// Ping checks database connectivity.
func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *PostgresArchive) InsertTerminal(ctx context.Context, job *models.ArchivedJob) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO jobs (id, input_kind, status, result, error_kind, error_message, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   result = EXCLUDED.result,
		   error_kind = EXCLUDED.error_kind,
		   error_message = EXCLUDED.error_message,
		   finished_at = EXCLUDED.finished_at`,
		job.ID, job.InputKind, job.Status, job.Result, job.ErrorKind, job.ErrorMessage,
		job.CreatedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert terminal job: %w", err)
	}
	return nil
}

func (a *PostgresArchive) GetJob(ctx context.Context, id uuid.UUID) (*models.ArchivedJob, error) {
	var j models.ArchivedJob
	err := a.pool.QueryRow(ctx,
		`SELECT id, input_kind, status, result, error_kind, error_message, created_at, finished_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.InputKind, &j.Status, &j.Result, &j.ErrorKind, &j.ErrorMessage,
		&j.CreatedAt, &j.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get archived job: %w", err)
	}
	return &j, nil
}

func (a *PostgresArchive) ListRecent(ctx context.Context, limit int) ([]*models.ArchivedJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := a.pool.Query(ctx,
		`SELECT id, input_kind, status, result, error_kind, error_message, created_at, finished_at
		 FROM jobs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ArchivedJob
	for rows.Next() {
		var j models.ArchivedJob
		if err := rows.Scan(&j.ID, &j.InputKind, &j.Status, &j.Result, &j.ErrorKind,
			&j.ErrorMessage, &j.CreatedAt, &j.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan archived job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}
