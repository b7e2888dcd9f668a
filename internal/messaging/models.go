// Package messaging is the inbound messaging bounded context: contacts,
// conversations, messages, and the idempotency records that make webhook
// retries and concurrent deliveries safe.
package messaging

import (
	"time"

	"github.com/google/uuid"

	"visadesk_backend/internal/flow"
)

// Direction of a message.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message delivery statuses.
const (
	MessageReceived = "received"
	MessageSent     = "sent"
	MessageFailed   = "failed"
)

// Inbound event statuses (vd_inbound_events).
const (
	InboundPending   = "pending"
	InboundCompleted = "completed"
	InboundFailed    = "failed"
)

// Outbound reply statuses (vd_outbound_replies).
const (
	OutboundPending = "pending"
	OutboundSent    = "sent"
	OutboundFailed  = "failed"
	// OutboundAbandoned marks replies that stayed pending past the reconcile
	// horizon; the sweep flags them for human review, it never resends.
	OutboundAbandoned = "abandoned"
)

// Contact is one real-world correspondent, unique per normalized address
// per channel.
type Contact struct {
	ID               uuid.UUID
	Channel          string
	CanonicalAddress string
	RawAddress       string
	DisplayName      *string
	Nationality      *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Conversation is the channel-scoped thread with one contact. The flow
// state machine's persisted state lives on the conversation row.
type Conversation struct {
	ID             uuid.UUID
	ContactID      uuid.UUID
	Channel        string
	CurrentLeadID  *uuid.UUID
	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	ArchivedAt     *time.Time
	LastQuestionAt *time.Time
	Flow           flow.State
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is one inbound or outbound unit of communication.
type Message struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	LeadID            *uuid.UUID
	Direction         string
	Channel           string
	ProviderMessageID *string
	Body              string
	MediaObjectKey    *string
	Status            string
	CreatedAt         time.Time
}

// OutboundReply is the idempotency record for one automated reply keyed by
// its triggering inbound message.
type OutboundReply struct {
	Channel           string
	TriggerMessageID  uuid.UUID
	ProviderMessageID *string
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
