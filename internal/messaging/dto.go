package messaging

import (
	"time"

	"github.com/google/uuid"
)

// WebhookRequest is the body of POST /webhook/:channel. Providers batch one
// or more event envelopes per delivery.
type WebhookRequest struct {
	Events []InboundEvent `json:"events" validate:"required,min=1,max=100,dive"`
}

// InboundEvent is one provider event envelope.
type InboundEvent struct {
	MessageID string    `json:"messageId" validate:"required,max=255"`
	From      string    `json:"from" validate:"required,max=64"`
	Type      string    `json:"type" validate:"required,oneof=text media"`
	Body      string    `json:"body" validate:"max=8192"`
	Media     *MediaRef `json:"media,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Time returns the provider timestamp, falling back to now when absent.
func (e InboundEvent) Time() time.Time {
	if e.Timestamp > 0 {
		return time.Unix(e.Timestamp, 0).UTC()
	}
	return time.Now().UTC()
}

// ConversationResponse is the operator-facing view of a conversation.
type ConversationResponse struct {
	ID             uuid.UUID  `json:"id"`
	ContactID      uuid.UUID  `json:"contactId"`
	Channel        string     `json:"channel"`
	CurrentLeadID  *uuid.UUID `json:"currentLeadId,omitempty"`
	FlowKey        string     `json:"flowKey,omitempty"`
	FlowStep       string     `json:"flowStep,omitempty"`
	QuestionsAsked int        `json:"questionsAsked"`
	LastInboundAt  *time.Time `json:"lastInboundAt,omitempty"`
	LastOutboundAt *time.Time `json:"lastOutboundAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toConversationResponse(c Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             c.ID,
		ContactID:      c.ContactID,
		Channel:        c.Channel,
		CurrentLeadID:  c.CurrentLeadID,
		FlowKey:        string(c.Flow.Key),
		FlowStep:       string(c.Flow.Step),
		QuestionsAsked: c.Flow.QuestionsAsked,
		LastInboundAt:  c.LastInboundAt,
		LastOutboundAt: c.LastOutboundAt,
		CreatedAt:      c.CreatedAt,
	}
}

// MessageResponse is the operator-facing view of a message.
type MessageResponse struct {
	ID                uuid.UUID `json:"id"`
	Direction         string    `json:"direction"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	Body              string    `json:"body"`
	MediaObjectKey    *string   `json:"mediaObjectKey,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toMessageResponse(m Message) MessageResponse {
	return MessageResponse{
		ID:                m.ID,
		Direction:         m.Direction,
		ProviderMessageID: m.ProviderMessageID,
		Body:              m.Body,
		MediaObjectKey:    m.MediaObjectKey,
		Status:            m.Status,
		CreatedAt:         m.CreatedAt,
	}
}
