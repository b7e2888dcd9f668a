package automation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"visadesk_backend/internal/events"
	"visadesk_backend/internal/extract"
	"visadesk_backend/internal/flow"
	"visadesk_backend/internal/leads"
	"visadesk_backend/internal/messaging"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/platform/logger"
)

type fakeConvStore struct {
	conv        messaging.Conversation
	msg         messaging.Message
	contact     messaging.Contact
	savedStates []flow.State
}

func (s *fakeConvStore) GetConversation(_ context.Context, _ uuid.UUID) (messaging.Conversation, error) {
	return s.conv, nil
}

func (s *fakeConvStore) GetMessage(_ context.Context, _ uuid.UUID) (messaging.Message, error) {
	return s.msg, nil
}

func (s *fakeConvStore) GetContact(_ context.Context, _ uuid.UUID) (messaging.Contact, error) {
	return s.contact, nil
}

func (s *fakeConvStore) FindConversationByContact(_ context.Context, _ uuid.UUID) (messaging.Conversation, error) {
	return s.conv, nil
}

func (s *fakeConvStore) SaveFlowState(_ context.Context, _ uuid.UUID, state flow.State) error {
	s.savedStates = append(s.savedStates, state)
	return nil
}

func (s *fakeConvStore) SetMessageMediaKey(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (s *fakeConvStore) EnrichContact(_ context.Context, _ uuid.UUID, _, _ string) error {
	return nil
}

type fakeLeadStore struct {
	lead   leads.Lead
	stages []leads.Stage
}

func (s *fakeLeadStore) GetByID(_ context.Context, _ uuid.UUID) (leads.Lead, error) {
	return s.lead, nil
}

func (s *fakeLeadStore) SetStage(_ context.Context, _ uuid.UUID, stage leads.Stage) error {
	s.stages = append(s.stages, stage)
	return nil
}

func (s *fakeLeadStore) SetServiceIntent(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (s *fakeLeadStore) MergeData(_ context.Context, _ uuid.UUID, _ map[string]string) error {
	return nil
}

func (s *fakeLeadStore) ScheduleFollowUp(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}

func newTestProcessor(convStore *fakeConvStore, leadStore *fakeLeadStore, taskRepo *fakeTasks, sender *fakeSender) *ReplyProcessor {
	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	dispatcher := NewDispatcher(&fakeStore{}, &fakeWriter{}, sender, taskRepo, bus, 1000, time.Minute, "worker-test", log)
	return NewReplyProcessor(convStore, leadStore, taskRepo, dispatcher, flow.NewMachine(5), nil, nil, bus, log)
}

func TestProcessReplyHandoverKeepsAbsorbedState(t *testing.T) {
	convID, msgID, contactID, leadID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	convStore := &fakeConvStore{
		conv: messaging.Conversation{
			ID:        convID,
			ContactID: contactID,
			Channel:   "whatsapp",
			Flow: flow.State{
				Key:             flow.KeyVisitVisa,
				Step:            flow.StepAwaitingAnswer,
				LastQuestionKey: flow.QuestionName,
				QuestionsAsked:  2,
				Collected:       map[string]string{string(flow.QuestionService): "visit_visa"},
			},
		},
		msg:     messaging.Message{ID: msgID, ConversationID: convID, Body: "I'm John Smith, is there any discount?"},
		contact: messaging.Contact{ID: contactID, CanonicalAddress: "971501234567"},
	}
	leadStore := &fakeLeadStore{lead: leads.Lead{ID: leadID, ContactID: contactID, Stage: leads.StageEngaged}}
	taskRepo := &fakeTasks{}
	sender := &fakeSender{providerID: "wamid.9"}
	p := newTestProcessor(convStore, leadStore, taskRepo, sender)

	payload, err := json.Marshal(messaging.ReplyJobPayload{
		ConversationID: convID, MessageID: msgID, ContactID: contactID, LeadID: leadID, Channel: "whatsapp",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Process(context.Background(), Job{ID: uuid.New(), Type: messaging.JobTypeConversationReply, Payload: payload}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(convStore.savedStates) == 0 {
		t.Fatal("flow state never saved")
	}
	// The last write wins in the database. It must still carry the answer
	// absorbed from the triggering message and the question counter.
	final := convStore.savedStates[len(convStore.savedStates)-1]
	if final.Step != flow.StepHandover {
		t.Errorf("final step = %s, want handover", final.Step)
	}
	if got := final.Collected[string(flow.QuestionName)]; got != "John Smith" {
		t.Errorf("absorbed answer lost on escalation, collected = %v", final.Collected)
	}
	if final.QuestionsAsked != 2 {
		t.Errorf("questions asked = %d, want 2", final.QuestionsAsked)
	}
	if len(taskRepo.kinds) != 1 || taskRepo.kinds[0] != tasks.KindHandover {
		t.Errorf("expected one handover task, got %v", taskRepo.kinds)
	}
	if sender.body != handoverAck {
		t.Errorf("sent body = %q, want handover acknowledgment", sender.body)
	}
}

func TestProcessFollowUpDoesNotRepeatPendingQuestion(t *testing.T) {
	convID, contactID, leadID := uuid.New(), uuid.New(), uuid.New()
	convStore := &fakeConvStore{
		conv: messaging.Conversation{
			ID:        convID,
			ContactID: contactID,
			Channel:   "whatsapp",
			Flow: flow.State{
				Key:             flow.KeyVisitVisa,
				Step:            flow.StepAwaitingAnswer,
				LastQuestionKey: flow.QuestionEntryDate,
				QuestionsAsked:  1,
			},
		},
		contact: messaging.Contact{ID: contactID, CanonicalAddress: "971501234567"},
	}
	leadStore := &fakeLeadStore{lead: leads.Lead{ID: leadID, ContactID: contactID, Stage: leads.StageEngaged}}
	sender := &fakeSender{providerID: "wamid.10"}
	p := newTestProcessor(convStore, leadStore, &fakeTasks{}, sender)

	payload, err := json.Marshal(FollowUpJobPayload{LeadID: leadID})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Process(context.Background(), Job{ID: uuid.New(), Type: JobTypeLeadFollowUp, Payload: payload}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !sender.called {
		t.Fatal("nudge was not sent")
	}
	if sender.body != followUpNudge {
		t.Errorf("nudge body = %q, want the generic check-in", sender.body)
	}
	for _, q := range flow.DefinitionFor(flow.KeyVisitVisa).Questions {
		if strings.Contains(sender.body, q.Prompt) {
			t.Errorf("nudge re-asks question %s", q.Key)
		}
	}
	if len(convStore.savedStates) != 0 {
		t.Errorf("follow-up must not touch flow state, saved %d states", len(convStore.savedStates))
	}
}

func TestProcessFollowUpSkipsHandedOverLead(t *testing.T) {
	leadID := uuid.New()
	sender := &fakeSender{}
	p := newTestProcessor(&fakeConvStore{}, &fakeLeadStore{lead: leads.Lead{ID: leadID, Stage: leads.StageHandover}}, &fakeTasks{}, sender)

	payload, err := json.Marshal(FollowUpJobPayload{LeadID: leadID})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Process(context.Background(), Job{ID: uuid.New(), Type: JobTypeLeadFollowUp, Payload: payload}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if sender.called {
		t.Fatal("no nudge may be sent after handover")
	}
}

func TestAnswersFromFields(t *testing.T) {
	fields := extract.Fields{
		Name:        "Ahmed Hassan",
		Nationality: "Egypt",
		Email:       "ahmed@example.com",
		ExpiryDate:  "2026-03-15",
		PartySize:   3,
		ExpiryHint:  true,
		Date:        "2026-05-01",
	}

	answers := answersFromFields(fields)

	want := map[flow.QuestionKey]string{
		flow.QuestionName:        "Ahmed Hassan",
		flow.QuestionNationality: "Egypt",
		flow.QuestionEmail:       "ahmed@example.com",
		flow.QuestionExpiryDate:  "2026-03-15",
		flow.QuestionPartySize:   "3",
	}
	if len(answers) != len(want) {
		t.Fatalf("answers = %v, want %v", answers, want)
	}
	for key, value := range want {
		if answers[key] != value {
			t.Errorf("answers[%s] = %q, want %q", key, answers[key], value)
		}
	}
	// A context-free date and a hint are not answers to any question.
	if _, ok := answers[flow.QuestionEntryDate]; ok {
		t.Error("context-free date must not map to entry_date")
	}
}

func TestAnswersFromFieldsEmpty(t *testing.T) {
	if answers := answersFromFields(extract.Fields{}); len(answers) != 0 {
		t.Errorf("answers = %v, want empty", answers)
	}
}

func TestClassifyLoadError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		noRetry bool
	}{
		{"missing conversation", messaging.ErrNotFound, true},
		{"missing lead", leads.ErrNotFound, true},
		{"database unavailable", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyLoadError("entity", tt.err)
			if got == nil {
				t.Fatal("expected an error")
			}
			if IsNoRetry(got) != tt.noRetry {
				t.Errorf("IsNoRetry = %v, want %v", IsNoRetry(got), tt.noRetry)
			}
			if !errors.Is(got, tt.err) {
				t.Error("original error not wrapped")
			}
		})
	}
}

func TestProcessUnknownJobType(t *testing.T) {
	p := &ReplyProcessor{}
	err := p.Process(context.Background(), Job{Type: "no.such.type"})
	if !IsNoRetry(err) {
		t.Fatalf("unknown job type must fail terminally, got %v", err)
	}
}

func TestNoRetryWrapping(t *testing.T) {
	base := errors.New("boom")
	wrapped := NoRetry(base)
	if !IsNoRetry(wrapped) {
		t.Error("IsNoRetry(NoRetry(err)) = false")
	}
	if !errors.Is(wrapped, base) {
		t.Error("NoRetry must preserve the wrapped error")
	}
	if IsNoRetry(base) {
		t.Error("plain error must be retryable")
	}
	if NoRetry(nil) != nil {
		t.Error("NoRetry(nil) must be nil")
	}
}
