// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"visadesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Messaging Domain Events
// =============================================================================

// InboundMessageReceived is published after a webhook event passed
// idempotency and entity resolution.
type InboundMessageReceived struct {
	BaseEvent
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	ContactID      uuid.UUID `json:"contactId"`
	LeadID         uuid.UUID `json:"leadId"`
	Channel        string    `json:"channel"`
	IsNewLead      bool      `json:"isNewLead"`
}

func (e InboundMessageReceived) EventName() string { return "messaging.inbound.received" }

// InboundProcessingFailed is published when an accepted webhook event could
// not be processed. The delivery was already ACKed to the provider, so
// without follow-up the message would be lost silently.
type InboundProcessingFailed struct {
	BaseEvent
	Channel           string `json:"channel"`
	ProviderMessageID string `json:"providerMessageId"`
	Reason            string `json:"reason"`
}

func (e InboundProcessingFailed) EventName() string { return "messaging.inbound.failed" }

// ReplyDispatched is published after the dispatch guard successfully sent
// an automated reply.
type ReplyDispatched struct {
	BaseEvent
	ConversationID    uuid.UUID `json:"conversationId"`
	TriggerMessageID  uuid.UUID `json:"triggerMessageId"`
	OutboundMessageID uuid.UUID `json:"outboundMessageId"`
	QuestionKey       string    `json:"questionKey,omitempty"`
}

func (e ReplyDispatched) EventName() string { return "messaging.reply.dispatched" }

// =============================================================================
// Flow Domain Events
// =============================================================================

// HandoverRequested is published when a conversation transitions to the
// handover step and a human must take over.
type HandoverRequested struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	Reason         string    `json:"reason"`
}

func (e HandoverRequested) EventName() string { return "flow.handover.requested" }

// =============================================================================
// Automation Domain Events
// =============================================================================

// JobFailedTerminally is published when an automation job exhausted its
// retry budget and needs human follow-up.
type JobFailedTerminally struct {
	BaseEvent
	JobID   uuid.UUID `json:"jobId"`
	JobType string    `json:"jobType"`
	Reason  string    `json:"reason"`
}

func (e JobFailedTerminally) EventName() string { return "automation.job.failed" }
