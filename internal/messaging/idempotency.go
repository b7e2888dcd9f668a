package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore is the durable dedup layer. The uniqueness constraints
// on vd_inbound_events and vd_outbound_replies are the sole source of truth
// for "has this already happened"; nothing here keeps in-memory state.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// RecordInbound marks one provider delivery as seen. isNew=false means the
// event was already processed (or is being processed) and the caller must
// stop without side effects. An error means the store is unreachable and
// the caller must fail closed.
func (s *IdempotencyStore) RecordInbound(ctx context.Context, channel, providerMessageID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO vd_inbound_events (channel, provider_message_id)
		 VALUES ($1, $2)
		 ON CONFLICT (channel, provider_message_id) DO NOTHING`,
		channel, providerMessageID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetInboundStatus moves an inbound event to completed or failed.
func (s *IdempotencyStore) SetInboundStatus(ctx context.Context, channel, providerMessageID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE vd_inbound_events
		 SET status = $3, updated_at = now()
		 WHERE channel = $1 AND provider_message_id = $2`,
		channel, providerMessageID, status,
	)
	return err
}

// RecordOutbound claims the right to send the one automated reply for a
// triggering inbound message. Must be called and committed before the send
// attempt: a crash between send and record then causes a missing provider
// id (reconciled by the sweep), never a duplicate send.
func (s *IdempotencyStore) RecordOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO vd_outbound_replies (channel, trigger_message_id)
		 VALUES ($1, $2)
		 ON CONFLICT (channel, trigger_message_id) DO NOTHING`,
		channel, triggerMessageID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteOutbound stores the provider message id after a successful send.
func (s *IdempotencyStore) CompleteOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID, providerMessageID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE vd_outbound_replies
		 SET status = $3, provider_message_id = NULLIF($4, ''), updated_at = now()
		 WHERE channel = $1 AND trigger_message_id = $2`,
		channel, triggerMessageID, OutboundSent, providerMessageID,
	)
	return err
}

// FailOutbound marks the reply record failed after a terminal send error.
func (s *IdempotencyStore) FailOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE vd_outbound_replies
		 SET status = $3, updated_at = now()
		 WHERE channel = $1 AND trigger_message_id = $2`,
		channel, triggerMessageID, OutboundFailed,
	)
	return err
}

// ReleaseOutbound deletes a reply claim that produced no send attempt, so a
// requeued job can claim it again. Only safe before any transport call.
func (s *IdempotencyStore) ReleaseOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM vd_outbound_replies
		 WHERE channel = $1 AND trigger_message_id = $2 AND status = $3 AND provider_message_id IS NULL`,
		channel, triggerMessageID, OutboundPending,
	)
	return err
}

// AcquireConversationLease takes the short-lived per-conversation lock that
// serializes reply dispatch. The lease is a durable row so it survives
// process restarts; an expired lease is stolen in the same statement.
func (s *IdempotencyStore) AcquireConversationLease(ctx context.Context, conversationID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	expires := time.Now().UTC().Add(ttl)
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO vd_conversation_leases (conversation_id, locked_by, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (conversation_id)
		 DO UPDATE SET locked_by = $2, expires_at = $3
		 WHERE vd_conversation_leases.expires_at < now()`,
		conversationID, owner, expires,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseConversationLease frees the lock if the caller still holds it.
func (s *IdempotencyStore) ReleaseConversationLease(ctx context.Context, conversationID uuid.UUID, owner string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM vd_conversation_leases
		 WHERE conversation_id = $1 AND locked_by = $2`,
		conversationID, owner,
	)
	return err
}

// AbandonStaleOutbound flags reply records stuck in pending past the
// horizon, so they surface for human review. The sweep never resends:
// a pending record may mean a send happened right before a crash.
func (s *IdempotencyStore) AbandonStaleOutbound(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE vd_outbound_replies
		 SET status = $1, updated_at = now()
		 WHERE status = $2 AND created_at < $3`,
		OutboundAbandoned, OutboundPending, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneInboundEvents deletes completed inbound dedup records older than the
// retention period. Pending and failed rows are kept for inspection.
func (s *IdempotencyStore) PruneInboundEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM vd_inbound_events
		 WHERE status = $1 AND created_at < $2`,
		InboundCompleted, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
