package leads

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = errors.New("lead not found")

// Lead is one business opportunity tied to a contact.
type Lead struct {
	ID             uuid.UUID
	ContactID      uuid.UUID
	Stage          Stage
	ServiceIntent  string
	Data           json.RawMessage
	NextFollowUpAt *time.Time
	AssignedTo     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository persists leads. All uniqueness and reuse decisions run as
// single SQL statements so they hold under concurrent workers.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, contact_id, stage, service_intent, data, next_follow_up_at, assigned_to, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	var stage string
	err := row.Scan(&l.ID, &l.ContactID, &stage, &l.ServiceIntent, &l.Data, &l.NextFollowUpAt, &l.AssignedTo, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	l.Stage = Stage(stage)
	return l, nil
}

// Create inserts a fresh lead in the initial stage.
func (r *Repository) Create(ctx context.Context, contactID uuid.UUID, serviceIntent string) (Lead, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vd_leads (contact_id, stage, service_intent, data)
		 VALUES ($1, $2, $3, '{}'::jsonb)
		 RETURNING `+leadColumns,
		contactID, string(StageNew), serviceIntent,
	)
	return scanLead(row)
}

// GetByID fetches one lead.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM vd_leads WHERE id = $1`, id)
	return scanLead(row)
}

// FindReusableOpen returns the most recently updated open lead for the
// contact whose last activity falls inside the reuse window. ErrNotFound
// means a new lead must be created.
func (r *Repository) FindReusableOpen(ctx context.Context, contactID uuid.UUID, window time.Duration) (Lead, error) {
	cutoff := time.Now().UTC().Add(-window)
	row := r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+`
		 FROM vd_leads
		 WHERE contact_id = $1
		   AND stage NOT IN ($2, $3, $4)
		   AND updated_at >= $5
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		contactID, string(StageWon), string(StageLost), string(StageAbandoned), cutoff,
	)
	return scanLead(row)
}

// Touch refreshes the lead's last-contact timestamp.
func (r *Repository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_leads SET updated_at = now() WHERE id = $1`, id)
	return err
}

// MergeData merges extracted fields into the lead's data bag additively:
// keys already present keep their stored value, so human-entered or earlier
// higher-confidence data is never overwritten by a later extraction.
func (r *Repository) MergeData(ctx context.Context, id uuid.UUID, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	incoming, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE vd_leads
		 SET data = $2::jsonb || data, updated_at = now()
		 WHERE id = $1`,
		id, incoming,
	)
	return err
}

// SetServiceIntent records the detected service intent if none is set yet.
func (r *Repository) SetServiceIntent(ctx context.Context, id uuid.UUID, intent string) error {
	if intent == "" {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_leads
		 SET service_intent = $2, updated_at = now()
		 WHERE id = $1 AND service_intent = ''`,
		id, intent,
	)
	return err
}

// SetStage moves the lead to a new pipeline stage.
func (r *Repository) SetStage(ctx context.Context, id uuid.UUID, stage Stage) error {
	if !stage.IsValid() {
		return errors.New("invalid lead stage: " + string(stage))
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_leads SET stage = $2, updated_at = now() WHERE id = $1`,
		id, string(stage),
	)
	return err
}

// ScheduleFollowUp sets the next follow-up timestamp.
func (r *Repository) ScheduleFollowUp(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_leads SET next_follow_up_at = $2, updated_at = now() WHERE id = $1`,
		id, at.UTC(),
	)
	return err
}

// ClaimDueFollowUps returns open leads whose follow-up time has passed and
// clears the timestamp in the same statement, so two dispatcher instances
// never promote the same follow-up twice.
func (r *Repository) ClaimDueFollowUps(ctx context.Context, limit int) ([]Lead, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`WITH due AS (
			SELECT id
			FROM vd_leads
			WHERE next_follow_up_at IS NOT NULL
			  AND next_follow_up_at <= now()
			  AND stage NOT IN ($1, $2, $3)
			ORDER BY next_follow_up_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE vd_leads l
		SET next_follow_up_at = NULL, updated_at = now()
		FROM due
		WHERE l.id = due.id
		RETURNING `+qualifiedLeadColumns("l"),
		string(StageWon), string(StageLost), string(StageAbandoned), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

func qualifiedLeadColumns(alias string) string {
	return alias + ".id, " + alias + ".contact_id, " + alias + ".stage, " +
		alias + ".service_intent, " + alias + ".data, " + alias + ".next_follow_up_at, " +
		alias + ".assigned_to, " + alias + ".created_at, " + alias + ".updated_at"
}
