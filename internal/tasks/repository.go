// Package tasks is the human follow-up surface: whenever automation must
// stop (handover, high-risk message, terminal failure) a task row is created
// for an operator to pick up.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Task kinds.
const (
	KindHandover      = "handover"
	KindHighRisk      = "high_risk_message"
	KindSendFailure   = "send_failure"
	KindJobFailure    = "job_failure"
	KindStaleOutbound = "stale_outbound"
	KindIngestFailure = "ingest_failure"
)

// Task statuses.
const (
	StatusOpen = "open"
	StatusDone = "done"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("task not found")

// Task is one unit of human follow-up work.
type Task struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	LeadID         *uuid.UUID `json:"leadId,omitempty"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Reason         string     `json:"reason"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create opens a new task.
func (r *Repository) Create(ctx context.Context, kind string, leadID, conversationID *uuid.UUID, reason string) (Task, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vd_tasks (kind, lead_id, conversation_id, reason)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, kind, lead_id, conversation_id, reason, status, created_at`,
		kind, leadID, conversationID, reason,
	)
	return scanTask(row)
}

// ListOpen returns open tasks, newest first.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]Task, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, lead_id, conversation_id, reason, status, created_at
		 FROM vd_tasks
		 WHERE status = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		StatusOpen, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// Resolve closes a task.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vd_tasks SET status = $2 WHERE id = $1`,
		id, StatusDone,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Kind, &t.LeadID, &t.ConversationID, &t.Reason, &t.Status, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}
