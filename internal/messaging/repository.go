package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"visadesk_backend/internal/flow"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("messaging: not found")

// Repository persists contacts, conversations, and messages. Entity
// uniqueness is enforced by the schema constraints; every find-or-create
// here is a single atomic upsert statement, never a search-then-insert.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ---- Contacts ----

const contactColumns = `id, channel, canonical_address, raw_address, display_name, nationality, created_at, updated_at`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.Channel, &c.CanonicalAddress, &c.RawAddress, &c.DisplayName, &c.Nationality, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

// UpsertContact inserts or returns the contact for a canonical address.
// The ON CONFLICT arm is what makes two concurrent first messages from the
// same address yield exactly one contact row.
func (r *Repository) UpsertContact(ctx context.Context, channel, canonicalAddress, rawAddress string) (Contact, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vd_contacts (channel, canonical_address, raw_address)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (channel, canonical_address)
		 DO UPDATE SET updated_at = now()
		 RETURNING `+contactColumns,
		channel, canonicalAddress, rawAddress,
	)
	return scanContact(row)
}

// GetContact fetches one contact.
func (r *Repository) GetContact(ctx context.Context, id uuid.UUID) (Contact, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM vd_contacts WHERE id = $1`, id)
	return scanContact(row)
}

// EnrichContact fills display name and nationality if they are still empty.
// Existing values are never overwritten.
func (r *Repository) EnrichContact(ctx context.Context, id uuid.UUID, displayName, nationality string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_contacts
		 SET display_name = COALESCE(display_name, NULLIF($2, '')),
		     nationality  = COALESCE(nationality, NULLIF($3, '')),
		     updated_at   = now()
		 WHERE id = $1`,
		id, displayName, nationality,
	)
	return err
}

// ---- Conversations ----

const conversationColumns = `id, contact_id, channel, current_lead_id, last_inbound_at, last_outbound_at, archived_at,
	flow_key, flow_step, last_question_key, last_question_at, questions_asked, collected_data, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	var flowKey, flowStep, lastQuestion *string
	var collected []byte
	err := row.Scan(&c.ID, &c.ContactID, &c.Channel, &c.CurrentLeadID, &c.LastInboundAt, &c.LastOutboundAt, &c.ArchivedAt,
		&flowKey, &flowStep, &lastQuestion, &c.LastQuestionAt, &c.Flow.QuestionsAsked, &collected, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	if flowKey != nil {
		c.Flow.Key = flow.Key(*flowKey)
	}
	// A NULL step means no transition has run yet: the conversation is in
	// intake.
	c.Flow.Step = flow.StepIntake
	if flowStep != nil {
		c.Flow.Step = flow.Step(*flowStep)
	}
	if lastQuestion != nil {
		c.Flow.LastQuestionKey = flow.QuestionKey(*lastQuestion)
	}
	if len(collected) > 0 {
		if err := json.Unmarshal(collected, &c.Flow.Collected); err != nil {
			return Conversation{}, err
		}
	}
	return c, nil
}

// UpsertConversation inserts or returns the conversation for a (contact,
// channel) pair. Same atomic pattern as UpsertContact.
func (r *Repository) UpsertConversation(ctx context.Context, contactID uuid.UUID, channel string) (Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vd_conversations (contact_id, channel)
		 VALUES ($1, $2)
		 ON CONFLICT (contact_id, channel)
		 DO UPDATE SET updated_at = now()
		 RETURNING `+conversationColumns,
		contactID, channel,
	)
	return scanConversation(row)
}

// GetConversation fetches one conversation with its flow state.
func (r *Repository) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM vd_conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// FindConversationByContact returns the contact's most recently active
// non-archived conversation.
func (r *Repository) FindConversationByContact(ctx context.Context, contactID uuid.UUID) (Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		 FROM vd_conversations
		 WHERE contact_id = $1 AND archived_at IS NULL
		 ORDER BY COALESCE(last_inbound_at, created_at) DESC
		 LIMIT 1`,
		contactID,
	)
	return scanConversation(row)
}

// SaveFlowState persists the machine state produced by a flow transition.
// Called before any reply is dispatched so a crash leaves the conversation
// resumable.
func (r *Repository) SaveFlowState(ctx context.Context, id uuid.UUID, state flow.State) error {
	collected, err := json.Marshal(state.Collected)
	if err != nil {
		return err
	}
	var lastQuestionAt any
	if state.LastQuestionKey != "" {
		lastQuestionAt = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE vd_conversations
		 SET flow_key = NULLIF($2, ''),
		     flow_step = NULLIF($3, ''),
		     last_question_key = NULLIF($4, ''),
		     last_question_at = COALESCE($5, last_question_at),
		     questions_asked = $6,
		     collected_data = $7,
		     updated_at = now()
		 WHERE id = $1`,
		id, string(state.Key), string(state.Step), string(state.LastQuestionKey), lastQuestionAt, state.QuestionsAsked, collected,
	)
	return err
}

// SetCurrentLead points the conversation at its active lead.
func (r *Repository) SetCurrentLead(ctx context.Context, id, leadID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_conversations SET current_lead_id = $2, updated_at = now() WHERE id = $1`,
		id, leadID,
	)
	return err
}

// TouchInbound records inbound activity on the conversation.
func (r *Repository) TouchInbound(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_conversations SET last_inbound_at = $2, updated_at = now() WHERE id = $1`,
		id, at.UTC(),
	)
	return err
}

// TouchOutbound records outbound activity on the conversation.
func (r *Repository) TouchOutbound(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_conversations SET last_outbound_at = $2, updated_at = now() WHERE id = $1`,
		id, at.UTC(),
	)
	return err
}

// ListConversations returns recent conversations for the operator API.
func (r *Repository) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM vd_conversations
		 WHERE archived_at IS NULL
		 ORDER BY COALESCE(last_inbound_at, created_at) DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ---- Messages ----

const messageColumns = `id, conversation_id, lead_id, direction, channel, provider_message_id, body, media_object_key, status, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.LeadID, &m.Direction, &m.Channel, &m.ProviderMessageID, &m.Body, &m.MediaObjectKey, &m.Status, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return m, err
}

// InsertInboundMessage records one inbound message. The partial unique
// index on (channel, provider_message_id) makes a retried delivery come
// back with isNew=false instead of a second row.
func (r *Repository) InsertInboundMessage(ctx context.Context, conversationID uuid.UUID, leadID *uuid.UUID, channel, providerMessageID, body string) (Message, bool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vd_messages (conversation_id, lead_id, direction, channel, provider_message_id, body, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (channel, provider_message_id) WHERE provider_message_id IS NOT NULL
		 DO NOTHING
		 RETURNING `+messageColumns,
		conversationID, leadID, DirectionInbound, channel, providerMessageID, body, MessageReceived,
	)
	m, err := scanMessage(row)
	if errors.Is(err, ErrNotFound) {
		existing, err := r.GetMessageByProviderID(ctx, channel, providerMessageID)
		return existing, false, err
	}
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

// InsertOutboundMessage records one dispatched reply.
func (r *Repository) InsertOutboundMessage(ctx context.Context, conversationID uuid.UUID, leadID *uuid.UUID, channel, providerMessageID, body, status string) (Message, error) {
	var pmid *string
	if providerMessageID != "" {
		pmid = &providerMessageID
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vd_messages (conversation_id, lead_id, direction, channel, provider_message_id, body, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+messageColumns,
		conversationID, leadID, DirectionOutbound, channel, pmid, body, status,
	)
	return scanMessage(row)
}

// GetMessage fetches one message by id.
func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (Message, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM vd_messages WHERE id = $1`, id)
	return scanMessage(row)
}

// GetMessageByProviderID fetches a message by its provider-assigned id.
func (r *Repository) GetMessageByProviderID(ctx context.Context, channel, providerMessageID string) (Message, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		 FROM vd_messages
		 WHERE channel = $1 AND provider_message_id = $2`,
		channel, providerMessageID,
	)
	return scanMessage(row)
}

// SetMessageMediaKey stores the object key after media ingestion.
func (r *Repository) SetMessageMediaKey(ctx context.Context, id uuid.UUID, objectKey string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE vd_messages SET media_object_key = $2 WHERE id = $1`,
		id, objectKey,
	)
	return err
}

// ListMessages returns a conversation's messages, oldest first.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]Message, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM vd_messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
