package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"visadesk_backend/internal/events"
	"visadesk_backend/internal/messaging"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/internal/whatsapp"
	"visadesk_backend/platform/logger"
)

// ErrLockBusy means another worker holds the conversation lease. The job is
// requeued; the reply claim is released because no send was attempted.
var ErrLockBusy = errors.New("conversation lock busy")

// fallbackAck is the minimal reply used when generation fails. Deliberately
// bland: the customer must never see a system error.
const fallbackAck = "Thank you for your message. One of our consultants will get back to you shortly."

// GenerateFunc produces the reply text. Best-effort; the guard falls back
// on any error.
type GenerateFunc func(ctx context.Context) (string, error)

// OutboundStore is the slice of the idempotency store the guard needs.
type OutboundStore interface {
	RecordOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID) (bool, error)
	CompleteOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID, providerMessageID string) error
	FailOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID) error
	ReleaseOutbound(ctx context.Context, channel string, triggerMessageID uuid.UUID) error
	AcquireConversationLease(ctx context.Context, conversationID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	ReleaseConversationLease(ctx context.Context, conversationID uuid.UUID, owner string) error
}

// MessageWriter is the slice of the messaging repository the guard needs.
type MessageWriter interface {
	InsertOutboundMessage(ctx context.Context, conversationID uuid.UUID, leadID *uuid.UUID, channel, providerMessageID, body, status string) (messaging.Message, error)
	TouchOutbound(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Sender is the external send transport.
type Sender interface {
	Send(ctx context.Context, toAddress, body string) (string, error)
}

// TaskCreator opens operator tasks.
type TaskCreator interface {
	Create(ctx context.Context, kind string, leadID, conversationID *uuid.UUID, reason string) (tasks.Task, error)
}

// DispatchRequest describes one reply to send.
type DispatchRequest struct {
	ConversationID uuid.UUID
	LeadID         *uuid.UUID
	TriggerID      uuid.UUID
	Channel        string
	ToAddress      string
	QuestionKey    string
	Generate       GenerateFunc
	// Fallback replaces fallbackAck when generation fails (e.g. the scripted
	// question text).
	Fallback string
}

// DispatchResult reports what the guard did.
type DispatchResult struct {
	Sent              bool
	Skipped           bool
	MessageID         uuid.UUID
	ProviderMessageID string
}

// Dispatcher is the outbound dispatch guard: the only legal path to the
// external send transport. It enforces reply idempotency, per-conversation
// mutual exclusion, and provider-friendly send pacing.
type Dispatcher struct {
	store   OutboundStore
	repo    MessageWriter
	sender  Sender
	tasks   TaskCreator
	bus     events.Bus
	limiter *rate.Limiter
	ttl     time.Duration
	owner   string
	log     *logger.Logger
}

func NewDispatcher(store OutboundStore, repo MessageWriter, sender Sender, taskRepo TaskCreator, bus events.Bus, sendRate float64, leaseTTL time.Duration, owner string, log *logger.Logger) *Dispatcher {
	if sendRate <= 0 {
		sendRate = 5
	}
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Second
	}
	return &Dispatcher{
		store:   store,
		repo:    repo,
		sender:  sender,
		tasks:   taskRepo,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(sendRate), 1),
		ttl:     leaseTTL,
		owner:   owner,
		log:     log,
	}
}

// SendReply runs the guarded dispatch sequence: claim the reply record,
// take the conversation lease, generate, send, persist. Claiming before the
// send means a crash in between causes a flagged-but-missing record, never
// a duplicate message to the customer.
func (d *Dispatcher) SendReply(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	isNew, err := d.store.RecordOutbound(ctx, req.Channel, req.TriggerID)
	if err != nil {
		// Fail closed: without the claim no send may happen.
		return DispatchResult{}, err
	}
	if !isNew {
		d.log.Info("reply already produced for trigger, skipping",
			"conversationId", req.ConversationID, "triggerId", req.TriggerID)
		return DispatchResult{Skipped: true}, nil
	}

	acquired, err := d.store.AcquireConversationLease(ctx, req.ConversationID, d.owner, d.ttl)
	if err != nil {
		d.releaseClaim(ctx, req)
		return DispatchResult{}, err
	}
	if !acquired {
		// Another worker is mid-dispatch on this conversation. Skip and let
		// the requeued job try again; the claim is released because no send
		// was attempted.
		d.releaseClaim(ctx, req)
		d.log.Warn("conversation lease busy, skipping dispatch", "conversationId", req.ConversationID)
		return DispatchResult{Skipped: true}, ErrLockBusy
	}
	defer func() {
		if err := d.store.ReleaseConversationLease(context.WithoutCancel(ctx), req.ConversationID, d.owner); err != nil {
			d.log.Error("failed to release conversation lease", "error", err, "conversationId", req.ConversationID)
		}
	}()

	text := d.generateText(ctx, req)

	if err := d.limiter.Wait(ctx); err != nil {
		d.releaseClaim(ctx, req)
		return DispatchResult{}, err
	}

	providerID, sendErr := d.sender.Send(ctx, req.ToAddress, text)
	if sendErr != nil {
		return DispatchResult{}, d.handleSendError(ctx, req, sendErr)
	}

	if err := d.store.CompleteOutbound(ctx, req.Channel, req.TriggerID, providerID); err != nil {
		d.log.Error("sent but failed to complete outbound record", "error", err, "triggerId", req.TriggerID)
	}

	msg, err := d.repo.InsertOutboundMessage(ctx, req.ConversationID, req.LeadID, req.Channel, providerID, text, messaging.MessageSent)
	if err != nil {
		// The send happened; surface the persistence failure but never retry
		// the send.
		d.log.Error("sent but failed to persist outbound message", "error", err, "conversationId", req.ConversationID)
		return DispatchResult{Sent: true, ProviderMessageID: providerID}, NoRetry(err)
	}
	if err := d.repo.TouchOutbound(ctx, req.ConversationID, time.Now().UTC()); err != nil {
		d.log.Error("failed to touch conversation outbound time", "error", err, "conversationId", req.ConversationID)
	}

	d.bus.Publish(ctx, events.ReplyDispatched{
		BaseEvent:         events.NewBaseEvent(),
		ConversationID:    req.ConversationID,
		TriggerMessageID:  req.TriggerID,
		OutboundMessageID: msg.ID,
		QuestionKey:       req.QuestionKey,
	})

	return DispatchResult{Sent: true, MessageID: msg.ID, ProviderMessageID: providerID}, nil
}

func (d *Dispatcher) generateText(ctx context.Context, req DispatchRequest) string {
	if req.Generate != nil {
		text, err := req.Generate(ctx)
		if err == nil && text != "" {
			return text
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.Warn("reply generation failed, using fallback", "error", err, "conversationId", req.ConversationID)
		}
	}
	if req.Fallback != "" {
		return req.Fallback
	}
	return fallbackAck
}

// handleSendError maps a transport failure onto the retry contract. The
// reply claim is released only when the provider definitely rejected the
// request; an ambiguous failure keeps the claim so a retry can never double
// send (the stale record is flagged by the reconcile sweep instead).
func (d *Dispatcher) handleSendError(ctx context.Context, req DispatchRequest, sendErr error) error {
	var se *whatsapp.SendError
	if !errors.As(sendErr, &se) {
		return sendErr
	}

	switch {
	case se.Terminal():
		if err := d.store.FailOutbound(ctx, req.Channel, req.TriggerID); err != nil {
			d.log.Error("failed to mark outbound record failed", "error", err, "triggerId", req.TriggerID)
		}
		reason := fmt.Sprintf("provider rejected send on conversation %s: %v", req.ConversationID, sendErr)
		if _, err := d.tasks.Create(ctx, tasks.KindSendFailure, req.LeadID, &req.ConversationID, reason); err != nil {
			d.log.Error("failed to open send-failure task", "error", err, "conversationId", req.ConversationID)
		}
		return NoRetry(sendErr)
	case se.Retryable():
		d.releaseClaim(ctx, req)
		return sendErr
	default:
		// Ambiguous or expired: the message may have reached the provider.
		// Keep the pending claim and stop retrying this trigger.
		d.log.Warn("ambiguous send failure, keeping reply claim",
			"error", sendErr, "conversationId", req.ConversationID, "triggerId", req.TriggerID)
		return NoRetry(sendErr)
	}
}

func (d *Dispatcher) releaseClaim(ctx context.Context, req DispatchRequest) {
	if err := d.store.ReleaseOutbound(context.WithoutCancel(ctx), req.Channel, req.TriggerID); err != nil {
		d.log.Error("failed to release outbound claim", "error", err, "triggerId", req.TriggerID)
	}
}
