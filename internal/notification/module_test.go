package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"visadesk_backend/internal/events"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/platform/logger"
)

type fakeMailer struct {
	subjects []string
	bodies   []string
}

func (f *fakeMailer) SendAlert(_ context.Context, subject, body string) error {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeTasks struct {
	created []string
	reasons []string
}

func (f *fakeTasks) Create(_ context.Context, kind string, _, _ *uuid.UUID, reason string) (tasks.Task, error) {
	f.created = append(f.created, kind)
	f.reasons = append(f.reasons, reason)
	return tasks.Task{ID: uuid.New(), Kind: kind, Reason: reason}, nil
}

func TestHandleJobFailedTerminally(t *testing.T) {
	mailer := &fakeMailer{}
	taskRepo := &fakeTasks{}
	m := New(mailer, taskRepo, logger.New("test"))

	event := events.JobFailedTerminally{
		BaseEvent: events.NewBaseEvent(),
		JobID:     uuid.New(),
		JobType:   "conversation.reply",
		Reason:    "whatsapp send failed (auth): unauthorized",
	}
	if err := m.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(taskRepo.created) != 1 || taskRepo.created[0] != tasks.KindJobFailure {
		t.Errorf("tasks created = %v, want one %s", taskRepo.created, tasks.KindJobFailure)
	}
	if len(mailer.subjects) != 1 || mailer.subjects[0] != "automation job failed" {
		t.Errorf("alerts sent = %v", mailer.subjects)
	}
	if !strings.Contains(mailer.bodies[0], "unauthorized") {
		t.Errorf("alert body missing failure reason: %q", mailer.bodies[0])
	}
}

func TestHandleHandoverRequested(t *testing.T) {
	mailer := &fakeMailer{}
	taskRepo := &fakeTasks{}
	m := New(mailer, taskRepo, logger.New("test"))

	event := events.HandoverRequested{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: uuid.New(),
		LeadID:         uuid.New(),
		Reason:         "discount_requested",
	}
	if err := m.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	// The handover task is opened by the reply processor; this module must
	// not create a second one.
	if len(taskRepo.created) != 0 {
		t.Errorf("tasks created = %v, want none", taskRepo.created)
	}
	if len(mailer.subjects) != 1 || mailer.subjects[0] != "conversation handover" {
		t.Errorf("alerts sent = %v", mailer.subjects)
	}
}

func TestHandleInboundProcessingFailed(t *testing.T) {
	mailer := &fakeMailer{}
	taskRepo := &fakeTasks{}
	m := New(mailer, taskRepo, logger.New("test"))

	event := events.InboundProcessingFailed{
		BaseEvent:         events.NewBaseEvent(),
		Channel:           "whatsapp",
		ProviderMessageID: "wamid.77",
		Reason:            "lead lookup failed",
	}
	if err := m.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(taskRepo.created) != 1 || taskRepo.created[0] != tasks.KindIngestFailure {
		t.Errorf("tasks created = %v, want one %s", taskRepo.created, tasks.KindIngestFailure)
	}
	if !strings.Contains(taskRepo.reasons[0], "wamid.77") {
		t.Errorf("task reason missing provider message id: %q", taskRepo.reasons[0])
	}
	// A dropped message is a task, not a wake-up mail.
	if len(mailer.subjects) != 0 {
		t.Errorf("alerts sent = %v, want none", mailer.subjects)
	}
}

func TestHandleIgnoresUnrelatedEvents(t *testing.T) {
	mailer := &fakeMailer{}
	taskRepo := &fakeTasks{}
	m := New(mailer, taskRepo, logger.New("test"))

	event := events.InboundMessageReceived{BaseEvent: events.NewBaseEvent()}
	if err := m.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(mailer.subjects) != 0 || len(taskRepo.created) != 0 {
		t.Error("unrelated event must be a no-op")
	}
}
