// Package automation is the asynchronous half of the system: the durable
// job queue, the polling worker pool, the reply processor, and the outbound
// dispatch guard.
package automation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Job statuses. Terminal states are completed and failed.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// ErrJobNotFound is returned when a job does not exist.
var ErrJobNotFound = errors.New("automation job not found")

// Job is one unit of deferred work.
type Job struct {
	ID          uuid.UUID
	Type        string
	Payload     json.RawMessage
	Status      string
	Priority    int
	Attempts    int
	ClaimedBy   *string
	ClaimedAt   *time.Time
	ScheduledAt time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobRepository persists automation jobs. The claim statement is the sole
// mutation point for job status under concurrency; a worker must never
// touch a job it did not claim.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, type, payload, status, priority, attempts, claimed_by, claimed_at, scheduled_at, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Type, &j.Payload, &j.Status, &j.Priority, &j.Attempts, &j.ClaimedBy, &j.ClaimedAt, &j.ScheduledAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return j, err
}

// Enqueue inserts a job runnable immediately.
func (r *JobRepository) Enqueue(ctx context.Context, jobType string, payload any, priority int) (uuid.UUID, error) {
	return r.EnqueueAt(ctx, jobType, payload, priority, time.Now().UTC())
}

// EnqueueAt inserts a job that becomes runnable at the given time.
func (r *JobRepository) EnqueueAt(ctx context.Context, jobType string, payload any, priority int, runAt time.Time) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO vd_automation_jobs (type, payload, priority, scheduled_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		jobType, data, priority, runAt.UTC(),
	).Scan(&id)
	return id, err
}

// GetByID fetches one job.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM vd_automation_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ClaimBatch atomically moves a batch of due pending jobs to processing,
// stamped with the claiming worker. FOR UPDATE SKIP LOCKED means two
// workers polling concurrently never claim the same job; the status check
// inside the locked select means a claim succeeds only while the row is
// still pending. The attempt counter is incremented at claim time.
func (r *JobRepository) ClaimBatch(ctx context.Context, workerID string, limit int) ([]Job, error) {
	if limit < 1 {
		limit = 10
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM vd_automation_jobs
		WHERE status = 'pending' AND scheduled_at <= now()
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE vd_automation_jobs j
	SET status = 'processing',
	    attempts = attempts + 1,
	    claimed_by = $1,
	    claimed_at = now(),
	    updated_at = now()
	FROM cte
	WHERE j.id = cte.id
	RETURNING `+qualifiedJobColumns("j"), workerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// MarkCompleted finishes a job successfully.
func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_automation_jobs
		 SET status = 'completed', last_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	return err
}

// MarkFailed records a failed attempt. Under the retry ceiling the job goes
// back to pending with linear backoff; at the ceiling it fails terminally.
// Returns the resulting status.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, maxAttempts int, backoff time.Duration) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	var status string
	err := r.pool.QueryRow(ctx,
		`UPDATE vd_automation_jobs
		 SET status = CASE WHEN attempts >= $3 THEN 'failed' ELSE 'pending' END,
		     scheduled_at = CASE WHEN attempts >= $3 THEN scheduled_at
		                         ELSE now() + make_interval(secs => $4 * attempts) END,
		     last_error = $2,
		     claimed_by = NULL,
		     claimed_at = NULL,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING status`,
		id, reason, maxAttempts, backoff.Seconds(),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrJobNotFound
	}
	return status, err
}

// MarkFailedTerminal fails a job immediately, bypassing the retry budget.
func (r *JobRepository) MarkFailedTerminal(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_automation_jobs
		 SET status = 'failed', last_error = $2, claimed_by = NULL, claimed_at = NULL, updated_at = now()
		 WHERE id = $1`,
		id, reason,
	)
	return err
}

// ReclaimStale resets jobs stuck in processing past the lease timeout back
// to pending, recovering work claimed by a crashed worker.
func (r *JobRepository) ReclaimStale(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-leaseTimeout)
	tag, err := r.pool.Exec(ctx,
		`UPDATE vd_automation_jobs
		 SET status = 'pending', claimed_by = NULL, claimed_at = NULL, updated_at = now()
		 WHERE status = 'processing' AND claimed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func qualifiedJobColumns(alias string) string {
	return alias + ".id, " + alias + ".type, " + alias + ".payload, " + alias + ".status, " +
		alias + ".priority, " + alias + ".attempts, " + alias + ".claimed_by, " + alias + ".claimed_at, " +
		alias + ".scheduled_at, " + alias + ".last_error, " + alias + ".created_at, " + alias + ".updated_at"
}
