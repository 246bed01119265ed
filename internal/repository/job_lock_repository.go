package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

const pqUniqueViolation = "23505"

// JobLockRepository implements the per-period job lock on top of the
// uq_job_locks_open partial unique index.
type JobLockRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewJobLockRepository constructs the repository.
func NewJobLockRepository(db *sqlx.DB) *JobLockRepository {
	return &JobLockRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Acquire opens a run for (job, period). It returns false when another run is
// still open. The EXISTS probe only short-circuits the common case; the
// partial unique index decides races between concurrent inserts.
func (r *JobLockRepository) Acquire(ctx context.Context, job, period string) (bool, error) {
	const probe = `SELECT EXISTS (SELECT 1 FROM job_locks WHERE job_name = $1 AND period = $2 AND finished_at IS NULL)`
	var open bool
	if err := r.db.GetContext(ctx, &open, probe, job, period); err != nil {
		return false, fmt.Errorf("probe job lock: %w", err)
	}
	if open {
		return false, nil
	}

	const insert = `INSERT INTO job_locks (id, job_name, period, started_at, finished_at)
VALUES ($1, $2, $3, $4, NULL)
ON CONFLICT (job_name, period) WHERE finished_at IS NULL DO NOTHING`
	res, err := r.db.ExecContext(ctx, insert, uuid.NewString(), job, period, r.now())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert job lock: %w", err)
	}
	return affected(res)
}

// Release closes the most recent open run for (job, period).
func (r *JobLockRepository) Release(ctx context.Context, job, period string) error {
	const query = `UPDATE job_locks SET finished_at = $1
WHERE id = (SELECT id FROM job_locks WHERE job_name = $2 AND period = $3 AND finished_at IS NULL ORDER BY started_at DESC LIMIT 1)`
	if _, err := r.db.ExecContext(ctx, query, r.now(), job, period); err != nil {
		return fmt.Errorf("release job lock: %w", err)
	}
	return nil
}

// List returns lock history, newest first.
func (r *JobLockRepository) List(ctx context.Context, job string, limit int) ([]models.JobLock, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, job_name, period, started_at, finished_at FROM job_locks`
	args := []interface{}{}
	if job != "" {
		query += " WHERE job_name = $1"
		args = append(args, job)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d", limit)

	var locks []models.JobLock
	if err := r.db.SelectContext(ctx, &locks, query, args...); err != nil {
		return nil, fmt.Errorf("list job locks: %w", err)
	}
	return locks, nil
}
