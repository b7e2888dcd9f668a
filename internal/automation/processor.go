package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"visadesk_backend/internal/events"
	"visadesk_backend/internal/extract"
	"visadesk_backend/internal/flow"
	"visadesk_backend/internal/leads"
	"visadesk_backend/internal/media"
	"visadesk_backend/internal/messaging"
	"visadesk_backend/internal/reply"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/platform/logger"
)

// JobTypeLeadFollowUp nudges a lead whose follow-up timer came due without
// a new inbound message.
const JobTypeLeadFollowUp = "lead.followup"

// FollowUpJobPayload is the payload of a lead.followup job.
type FollowUpJobPayload struct {
	LeadID uuid.UUID `json:"leadId"`
}

const (
	handoverAck   = "Thank you. One of our consultants will take over from here and contact you shortly."
	followUpNudge = "Just checking in. Are you still interested in proceeding with your enquiry?"
	followUpGap   = 24 * time.Hour
)

// ConversationStore is the slice of the messaging repository the processor
// needs.
type ConversationStore interface {
	GetConversation(ctx context.Context, id uuid.UUID) (messaging.Conversation, error)
	GetMessage(ctx context.Context, id uuid.UUID) (messaging.Message, error)
	GetContact(ctx context.Context, id uuid.UUID) (messaging.Contact, error)
	FindConversationByContact(ctx context.Context, contactID uuid.UUID) (messaging.Conversation, error)
	SaveFlowState(ctx context.Context, id uuid.UUID, state flow.State) error
	SetMessageMediaKey(ctx context.Context, id uuid.UUID, objectKey string) error
	EnrichContact(ctx context.Context, id uuid.UUID, displayName, nationality string) error
}

// LeadStore is the slice of the leads repository the processor needs.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leads.Lead, error)
	SetStage(ctx context.Context, id uuid.UUID, stage leads.Stage) error
	SetServiceIntent(ctx context.Context, id uuid.UUID, intent string) error
	MergeData(ctx context.Context, id uuid.UUID, fields map[string]string) error
	ScheduleFollowUp(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ReplyProcessor turns a claimed job into at most one outbound reply. All
// persistence happens before the dispatch guard is invoked so a crash at any
// point is recoverable without re-asking or double sending.
type ReplyProcessor struct {
	repo       ConversationStore
	leadRepo   LeadStore
	taskRepo   TaskCreator
	dispatcher *Dispatcher
	machine    *flow.Machine
	generator  *reply.Generator
	media      *media.Store
	bus        events.Bus
	log        *logger.Logger
}

func NewReplyProcessor(repo ConversationStore, leadRepo LeadStore, taskRepo TaskCreator, dispatcher *Dispatcher, machine *flow.Machine, generator *reply.Generator, mediaStore *media.Store, bus events.Bus, log *logger.Logger) *ReplyProcessor {
	return &ReplyProcessor{
		repo:       repo,
		leadRepo:   leadRepo,
		taskRepo:   taskRepo,
		dispatcher: dispatcher,
		machine:    machine,
		generator:  generator,
		media:      mediaStore,
		bus:        bus,
		log:        log,
	}
}

// Process handles one claimed job. A nil return completes the job; a
// NoRetry error fails it terminally; any other error schedules a retry.
func (p *ReplyProcessor) Process(ctx context.Context, job Job) error {
	switch job.Type {
	case messaging.JobTypeConversationReply:
		return p.processReply(ctx, job)
	case JobTypeLeadFollowUp:
		return p.processFollowUp(ctx, job)
	default:
		return NoRetry(fmt.Errorf("unknown job type %q", job.Type))
	}
}

func (p *ReplyProcessor) processReply(ctx context.Context, job Job) error {
	var payload messaging.ReplyJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return NoRetry(fmt.Errorf("decode reply payload: %w", err))
	}

	conv, err := p.repo.GetConversation(ctx, payload.ConversationID)
	if err != nil {
		return classifyLoadError("conversation", err)
	}
	msg, err := p.repo.GetMessage(ctx, payload.MessageID)
	if err != nil {
		return classifyLoadError("message", err)
	}
	contact, err := p.repo.GetContact(ctx, payload.ContactID)
	if err != nil {
		return classifyLoadError("contact", err)
	}
	lead, err := p.leadRepo.GetByID(ctx, payload.LeadID)
	if err != nil {
		return classifyLoadError("lead", err)
	}

	p.ingestMedia(ctx, payload, msg)

	if reply.IsHighRisk(msg.Body) {
		return p.escalate(ctx, conv, lead, conv.Flow, tasks.KindHighRisk, "high-risk content in inbound message")
	}

	fields := extract.Extract(msg.Body)
	p.persistExtraction(ctx, contact, lead, fields)

	intent := fields.ServiceIntent
	if intent == "" {
		intent = lead.ServiceIntent
	}
	decision := p.machine.Advance(conv.Flow, flow.Input{
		Body:              msg.Body,
		Answers:           answersFromFields(fields),
		ServiceIntent:     intent,
		DiscountRequested: fields.DiscountRequested,
	})

	// The transition is durable before any reply leaves the system. A crash
	// after this point never repeats a question.
	if err := p.repo.SaveFlowState(ctx, conv.ID, decision.Next); err != nil {
		return err
	}
	if len(decision.Next.Collected) > 0 {
		if err := p.leadRepo.MergeData(ctx, lead.ID, decision.Next.Collected); err != nil {
			p.log.Error("failed to merge collected data into lead", "error", err, "leadId", lead.ID)
		}
	}

	switch decision.Kind {
	case flow.DecisionAsk:
		if lead.Stage == leads.StageNew {
			if err := p.leadRepo.SetStage(ctx, lead.ID, leads.StageEngaged); err != nil {
				p.log.Error("failed to advance lead stage", "error", err, "leadId", lead.ID)
			}
		}
		if err := p.leadRepo.ScheduleFollowUp(ctx, lead.ID, time.Now().UTC().Add(followUpGap)); err != nil {
			p.log.Error("failed to schedule follow-up", "error", err, "leadId", lead.ID)
		}
		return p.dispatch(ctx, conv, contact, lead, payload.MessageID, decision.Question.Prompt, string(decision.Question.Key), msg.Body)

	case flow.DecisionComplete:
		if err := p.leadRepo.SetStage(ctx, lead.ID, leads.StageQualified); err != nil {
			p.log.Error("failed to qualify lead", "error", err, "leadId", lead.ID)
		}
		return p.dispatch(ctx, conv, contact, lead, payload.MessageID, decision.WrapUp, "", msg.Body)

	case flow.DecisionHandover:
		// Escalate with decision.Next, the state persisted above: re-saving
		// the same state keeps the absorbed answers and question counter.
		if err := p.escalate(ctx, conv, lead, decision.Next, tasks.KindHandover, string(decision.Reason)); err != nil {
			return err
		}
		return p.dispatch(ctx, conv, contact, lead, payload.MessageID, handoverAck, "", msg.Body)

	default:
		// Terminal flow: the conversation is with a human now, stay silent.
		return nil
	}
}

// processFollowUp sends one nudge when a lead went quiet. The follow-up job
// ID doubles as the outbound trigger ID, which makes the nudge idempotent
// under job retries the same way inbound replies are.
func (p *ReplyProcessor) processFollowUp(ctx context.Context, job Job) error {
	var payload FollowUpJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return NoRetry(fmt.Errorf("decode follow-up payload: %w", err))
	}

	lead, err := p.leadRepo.GetByID(ctx, payload.LeadID)
	if err != nil {
		return classifyLoadError("lead", err)
	}
	if lead.Stage.IsTerminal() || lead.Stage == leads.StageHandover {
		return nil
	}
	conv, err := p.repo.FindConversationByContact(ctx, lead.ContactID)
	if err != nil {
		return classifyLoadError("conversation", err)
	}
	if conv.Flow.Step.IsTerminal() {
		return nil
	}
	contact, err := p.repo.GetContact(ctx, lead.ContactID)
	if err != nil {
		return classifyLoadError("contact", err)
	}

	// The nudge is deliberately generic. Re-asking the pending question here
	// would put two consecutive outbound messages with the same question key
	// on the conversation, which the flow forbids.
	return p.dispatch(ctx, conv, contact, lead, job.ID, followUpNudge, "", "")
}

// dispatch hands the composed reply to the outbound guard. Lock contention
// comes back as a plain retryable error so the worker requeues the job.
func (p *ReplyProcessor) dispatch(ctx context.Context, conv messaging.Conversation, contact messaging.Contact, lead leads.Lead, triggerID uuid.UUID, scripted, questionKey, lastInbound string) error {
	name := ""
	if contact.DisplayName != nil {
		name = *contact.DisplayName
	}

	_, err := p.dispatcher.SendReply(ctx, DispatchRequest{
		ConversationID: conv.ID,
		LeadID:         &lead.ID,
		TriggerID:      triggerID,
		Channel:        conv.Channel,
		ToAddress:      contact.CanonicalAddress,
		QuestionKey:    questionKey,
		Fallback:       scripted,
		Generate: func(gctx context.Context) (string, error) {
			return p.generator.Compose(gctx, reply.ComposeRequest{
				ContactName:   name,
				ServiceIntent: lead.ServiceIntent,
				LastInbound:   lastInbound,
				Scripted:      scripted,
			})
		},
	})
	if errors.Is(err, ErrLockBusy) {
		return fmt.Errorf("conversation %s: %w", conv.ID, err)
	}
	return err
}

// escalate stops automation on the conversation: terminal flow state, a
// handover lead stage, an operator task, and a handover event. The given
// state is the freshest flow state the caller holds; only its step changes.
func (p *ReplyProcessor) escalate(ctx context.Context, conv messaging.Conversation, lead leads.Lead, state flow.State, kind, reason string) error {
	state.Step = flow.StepHandover
	if err := p.repo.SaveFlowState(ctx, conv.ID, state); err != nil {
		return err
	}
	if err := p.leadRepo.SetStage(ctx, lead.ID, leads.StageHandover); err != nil {
		p.log.Error("failed to set handover stage", "error", err, "leadId", lead.ID)
	}
	if _, err := p.taskRepo.Create(ctx, kind, &lead.ID, &conv.ID, reason); err != nil {
		return err
	}

	p.bus.Publish(ctx, events.HandoverRequested{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		LeadID:         lead.ID,
		Reason:         reason,
	})
	p.log.Info("conversation escalated to human", "conversationId", conv.ID, "kind", kind, "reason", reason)
	return nil
}

// ingestMedia pulls provider-hosted media into object storage. Best effort:
// an expired reference degrades to a text-only message.
func (p *ReplyProcessor) ingestMedia(ctx context.Context, payload messaging.ReplyJobPayload, msg messaging.Message) {
	if payload.Media == nil || p.media == nil {
		return
	}
	key, err := p.media.Ingest(ctx, msg.ID, payload.Media.URL, payload.Media.MimeType)
	if err != nil {
		if errors.Is(err, media.ErrExpired) {
			p.log.Warn("media reference expired before download", "messageId", msg.ID)
		} else {
			p.log.Error("media ingest failed", "error", err, "messageId", msg.ID)
		}
		return
	}
	if err := p.repo.SetMessageMediaKey(ctx, msg.ID, key); err != nil {
		p.log.Error("failed to record media object key", "error", err, "messageId", msg.ID)
	}
}

// persistExtraction writes extracted fields to the contact and lead. All
// writes are additive; existing values always win.
func (p *ReplyProcessor) persistExtraction(ctx context.Context, contact messaging.Contact, lead leads.Lead, fields extract.Fields) {
	if fields.IsEmpty() {
		return
	}

	if fields.Name != "" || fields.Nationality != "" {
		if err := p.repo.EnrichContact(ctx, contact.ID, fields.Name, fields.Nationality); err != nil {
			p.log.Error("failed to enrich contact", "error", err, "contactId", contact.ID)
		}
	}
	if fields.ServiceIntent != "" {
		if err := p.leadRepo.SetServiceIntent(ctx, lead.ID, fields.ServiceIntent); err != nil {
			p.log.Error("failed to set lead service intent", "error", err, "leadId", lead.ID)
		}
	}

	data := map[string]string{}
	if fields.Email != "" {
		data["email"] = fields.Email
	}
	if fields.ExpiryDate != "" {
		data["expiry_date"] = fields.ExpiryDate
	}
	if fields.EntryDate != "" {
		data["entry_date"] = fields.EntryDate
	}
	if fields.Date != "" {
		data["mentioned_date"] = fields.Date
	}
	if fields.ExpiryHint {
		data["expiry_hint"] = "true"
	}
	if fields.PartySize > 0 {
		data["party_size"] = strconv.Itoa(fields.PartySize)
	}
	if len(data) == 0 {
		return
	}
	if err := p.leadRepo.MergeData(ctx, lead.ID, data); err != nil {
		p.log.Error("failed to merge extracted fields into lead", "error", err, "leadId", lead.ID)
	}
}

// answersFromFields maps extracted values onto flow question keys. Hints
// and context-free dates are deliberately excluded; the flow only accepts
// exact answers.
func answersFromFields(fields extract.Fields) map[flow.QuestionKey]string {
	answers := map[flow.QuestionKey]string{}
	if fields.Name != "" {
		answers[flow.QuestionName] = fields.Name
	}
	if fields.Nationality != "" {
		answers[flow.QuestionNationality] = fields.Nationality
	}
	if fields.Email != "" {
		answers[flow.QuestionEmail] = fields.Email
	}
	if fields.ExpiryDate != "" {
		answers[flow.QuestionExpiryDate] = fields.ExpiryDate
	}
	if fields.EntryDate != "" {
		answers[flow.QuestionEntryDate] = fields.EntryDate
	}
	if fields.PartySize > 0 {
		answers[flow.QuestionPartySize] = strconv.Itoa(fields.PartySize)
	}
	return answers
}

// classifyLoadError treats missing rows as terminal (the payload points at
// data that no longer exists) and everything else as transient.
func classifyLoadError(entity string, err error) error {
	if errors.Is(err, messaging.ErrNotFound) || errors.Is(err, leads.ErrNotFound) {
		return NoRetry(fmt.Errorf("load %s: %w", entity, err))
	}
	return fmt.Errorf("load %s: %w", entity, err)
}
