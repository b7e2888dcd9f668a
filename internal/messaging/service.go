package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"visadesk_backend/internal/events"
	"visadesk_backend/internal/leads"
	"visadesk_backend/platform/apperr"
	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
	"visadesk_backend/platform/phone"
	"visadesk_backend/platform/sanitize"
)

// JobTypeConversationReply is the automation job enqueued for each accepted
// inbound message.
const JobTypeConversationReply = "conversation.reply"

// ReplyJobPayload is the payload of a conversation.reply job.
type ReplyJobPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	ContactID      uuid.UUID `json:"contactId"`
	LeadID         uuid.UUID `json:"leadId"`
	Channel        string    `json:"channel"`
	Media          *MediaRef `json:"media,omitempty"`
}

// MediaRef points at provider-hosted media attached to an inbound message.
// The worker downloads it; the reference may have expired by then.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
}

// JobEnqueuer defers work to the durable job queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, priority int) (uuid.UUID, error)
}

// LeadAllocator is the slice of the leads repository the resolver needs.
type LeadAllocator interface {
	FindReusableOpen(ctx context.Context, contactID uuid.UUID, window time.Duration) (leads.Lead, error)
	Create(ctx context.Context, contactID uuid.UUID, serviceIntent string) (leads.Lead, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

// Service is the synchronous webhook ingress path: idempotency, entity
// resolution, message recording, job enqueue. Everything heavier runs in
// the worker.
type Service struct {
	repo     *Repository
	store    *IdempotencyStore
	leadRepo LeadAllocator
	jobs     JobEnqueuer
	bus      events.Bus
	cfg      config.FlowConfig
	log      *logger.Logger
}

func NewService(repo *Repository, store *IdempotencyStore, leadRepo LeadAllocator, jobs JobEnqueuer, bus events.Bus, cfg config.FlowConfig, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		leadRepo: leadRepo,
		jobs:     jobs,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// Resolution is the outcome of entity resolution for one inbound event.
type Resolution struct {
	Contact      Contact
	Conversation Conversation
	Lead         leads.Lead
	IsNewLead    bool
}

// Resolve maps a raw sender address onto durable entities: contact and
// conversation by atomic upsert, lead by reuse-or-create inside the
// configured reuse window.
func (s *Service) Resolve(ctx context.Context, channel, rawAddress string) (Resolution, error) {
	canonical := phone.CanonicalAddress(rawAddress)
	if canonical == "" {
		return Resolution{}, apperr.BadRequest("unusable sender address").WithDetails(map[string]string{"from": rawAddress})
	}

	contact, err := s.repo.UpsertContact(ctx, channel, canonical, rawAddress)
	if err != nil {
		return Resolution{}, err
	}

	conversation, err := s.repo.UpsertConversation(ctx, contact.ID, channel)
	if err != nil {
		return Resolution{}, err
	}

	lead, err := s.leadRepo.FindReusableOpen(ctx, contact.ID, s.cfg.GetLeadReuseWindow())
	isNewLead := false
	switch {
	case err == nil:
		if err := s.leadRepo.Touch(ctx, lead.ID); err != nil {
			return Resolution{}, err
		}
	case err == leads.ErrNotFound:
		lead, err = s.leadRepo.Create(ctx, contact.ID, "")
		if err != nil {
			return Resolution{}, err
		}
		isNewLead = true
	default:
		return Resolution{}, err
	}

	if conversation.CurrentLeadID == nil || *conversation.CurrentLeadID != lead.ID {
		if err := s.repo.SetCurrentLead(ctx, conversation.ID, lead.ID); err != nil {
			return Resolution{}, err
		}
		id := lead.ID
		conversation.CurrentLeadID = &id
	}

	return Resolution{Contact: contact, Conversation: conversation, Lead: lead, IsNewLead: isNewLead}, nil
}

// IngestResult summarizes one webhook delivery.
type IngestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Ingest processes the events of one webhook delivery. Duplicates are
// acknowledged without side effects; only an unreachable idempotency store
// bubbles up as an error (the handler then returns non-2xx so the provider
// retries).
func (s *Service) Ingest(ctx context.Context, channel string, inbound []InboundEvent) (IngestResult, error) {
	var result IngestResult

	for _, ev := range inbound {
		isNew, err := s.store.RecordInbound(ctx, channel, ev.MessageID)
		if err != nil {
			// Fail closed: without the dedup record no side effects may run.
			return result, apperr.Unavailable("idempotency store unreachable")
		}
		s.log.WebhookEvent(channel, ev.MessageID, !isNew)
		if !isNew {
			result.Duplicates++
			continue
		}

		if err := s.processEvent(ctx, channel, ev); err != nil {
			_ = s.store.SetInboundStatus(ctx, channel, ev.MessageID, InboundFailed)
			s.log.Error("inbound event failed", "error", err, "channel", channel, "providerMessageId", ev.MessageID)
			// The delivery is ACKed regardless, so make the parked event
			// operator-visible instead of letting it vanish.
			s.bus.Publish(ctx, events.InboundProcessingFailed{
				BaseEvent:         events.NewBaseEvent(),
				Channel:           channel,
				ProviderMessageID: ev.MessageID,
				Reason:            err.Error(),
			})
			result.Rejected++
			continue
		}
		result.Accepted++
	}

	return result, nil
}

func (s *Service) processEvent(ctx context.Context, channel string, ev InboundEvent) error {
	res, err := s.Resolve(ctx, channel, ev.From)
	if err != nil {
		return err
	}

	leadID := res.Lead.ID
	body := sanitize.Text(ev.Body)
	msg, isNew, err := s.repo.InsertInboundMessage(ctx, res.Conversation.ID, &leadID, channel, ev.MessageID, body)
	if err != nil {
		return err
	}

	receivedAt := ev.Time()
	if err := s.repo.TouchInbound(ctx, res.Conversation.ID, receivedAt); err != nil {
		return err
	}

	// A message row surviving an earlier partial failure: the job was (or
	// will be) enqueued by the delivery that inserted it.
	if isNew {
		payload := ReplyJobPayload{
			ConversationID: res.Conversation.ID,
			MessageID:      msg.ID,
			ContactID:      res.Contact.ID,
			LeadID:         res.Lead.ID,
			Channel:        channel,
			Media:          ev.Media,
		}
		if _, err := s.jobs.Enqueue(ctx, JobTypeConversationReply, payload, 0); err != nil {
			return err
		}
	}

	if err := s.store.SetInboundStatus(ctx, channel, ev.MessageID, InboundCompleted); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.InboundMessageReceived{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      msg.ID,
		ConversationID: res.Conversation.ID,
		ContactID:      res.Contact.ID,
		LeadID:         res.Lead.ID,
		Channel:        channel,
		IsNewLead:      res.IsNewLead,
	})

	return nil
}
