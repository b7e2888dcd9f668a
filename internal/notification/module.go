// Package notification turns domain events into operator signals: email
// alerts and, where the processor has not already done so, open tasks. It
// subscribes to the bus and is not HTTP-facing.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"visadesk_backend/internal/events"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/platform/logger"
)

// AlertSender delivers one internal alert. Satisfied by email.AlertMailer,
// including a nil one.
type AlertSender interface {
	SendAlert(ctx context.Context, subject, body string) error
}

// TaskCreator opens operator tasks.
type TaskCreator interface {
	Create(ctx context.Context, kind string, leadID, conversationID *uuid.UUID, reason string) (tasks.Task, error)
}

type Module struct {
	mailer AlertSender
	tasks  TaskCreator
	log    *logger.Logger
}

func New(mailer AlertSender, taskRepo TaskCreator, log *logger.Logger) *Module {
	return &Module{
		mailer: mailer,
		tasks:  taskRepo,
		log:    log,
	}
}

// RegisterHandlers subscribes the module to the events it turns into
// operator signals.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.JobFailedTerminally{}.EventName(), m)
	bus.Subscribe(events.HandoverRequested{}.EventName(), m)
	bus.Subscribe(events.InboundProcessingFailed{}.EventName(), m)
}

// Handle dispatches one domain event.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.JobFailedTerminally:
		return m.handleJobFailed(ctx, e)
	case events.HandoverRequested:
		return m.handleHandover(ctx, e)
	case events.InboundProcessingFailed:
		return m.handleInboundFailed(ctx, e)
	default:
		return nil
	}
}

// handleJobFailed opens a task and mails ops. A terminally failed reply job
// means a contact never got an answer; someone has to follow up by hand.
func (m *Module) handleJobFailed(ctx context.Context, e events.JobFailedTerminally) error {
	reason := fmt.Sprintf("job %s (%s) failed terminally: %s", e.JobID, e.JobType, e.Reason)
	if _, err := m.tasks.Create(ctx, tasks.KindJobFailure, nil, nil, reason); err != nil {
		m.log.Error("failed to open job-failure task", "error", err, "jobId", e.JobID)
		return err
	}

	body := fmt.Sprintf("Automation job %s of type %s exhausted its retries.\n\nLast error: %s\n\nAn open task was created; the affected conversation needs a manual reply.", e.JobID, e.JobType, e.Reason)
	if err := m.mailer.SendAlert(ctx, "automation job failed", body); err != nil {
		m.log.Error("failed to send job-failure alert", "error", err, "jobId", e.JobID)
	}
	return nil
}

// handleInboundFailed opens a task. The message was ACKed to the provider
// but never processed; the task is the only trace it leaves.
func (m *Module) handleInboundFailed(ctx context.Context, e events.InboundProcessingFailed) error {
	reason := fmt.Sprintf("inbound %s message %s failed processing: %s", e.Channel, e.ProviderMessageID, e.Reason)
	if _, err := m.tasks.Create(ctx, tasks.KindIngestFailure, nil, nil, reason); err != nil {
		m.log.Error("failed to open ingest-failure task", "error", err, "providerMessageId", e.ProviderMessageID)
		return err
	}
	return nil
}

// handleHandover mails ops. The task row is created by the processor that
// decided the handover, so only the alert happens here.
func (m *Module) handleHandover(ctx context.Context, e events.HandoverRequested) error {
	body := fmt.Sprintf("Conversation %s (lead %s) was handed over to a human.\n\nReason: %s", e.ConversationID, e.LeadID, e.Reason)
	if err := m.mailer.SendAlert(ctx, "conversation handover", body); err != nil {
		m.log.Error("failed to send handover alert", "error", err, "conversationId", e.ConversationID)
	}
	return nil
}
