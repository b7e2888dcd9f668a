package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"visadesk_backend/internal/events"
	"visadesk_backend/internal/messaging"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/internal/whatsapp"
	"visadesk_backend/platform/logger"
)

type fakeTasks struct {
	kinds   []string
	reasons []string
}

func (f *fakeTasks) Create(_ context.Context, kind string, _, _ *uuid.UUID, reason string) (tasks.Task, error) {
	f.kinds = append(f.kinds, kind)
	f.reasons = append(f.reasons, reason)
	return tasks.Task{ID: uuid.New(), Kind: kind, Reason: reason}, nil
}

type fakeStore struct {
	calls      []string
	duplicate  bool
	leaseBusy  bool
	status     string
	providerID string
}

func (s *fakeStore) RecordOutbound(_ context.Context, _ string, _ uuid.UUID) (bool, error) {
	s.calls = append(s.calls, "record")
	if s.duplicate {
		return false, nil
	}
	s.status = messaging.OutboundPending
	return true, nil
}

func (s *fakeStore) CompleteOutbound(_ context.Context, _ string, _ uuid.UUID, providerID string) error {
	s.calls = append(s.calls, "complete")
	s.status = messaging.OutboundSent
	s.providerID = providerID
	return nil
}

func (s *fakeStore) FailOutbound(_ context.Context, _ string, _ uuid.UUID) error {
	s.calls = append(s.calls, "fail")
	s.status = messaging.OutboundFailed
	return nil
}

func (s *fakeStore) ReleaseOutbound(_ context.Context, _ string, _ uuid.UUID) error {
	s.calls = append(s.calls, "release")
	s.status = ""
	return nil
}

func (s *fakeStore) AcquireConversationLease(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) (bool, error) {
	s.calls = append(s.calls, "lease")
	return !s.leaseBusy, nil
}

func (s *fakeStore) ReleaseConversationLease(_ context.Context, _ uuid.UUID, _ string) error {
	s.calls = append(s.calls, "unlease")
	return nil
}

type fakeWriter struct {
	inserted bool
	body     string
	status   string
}

func (w *fakeWriter) InsertOutboundMessage(_ context.Context, conversationID uuid.UUID, _ *uuid.UUID, _ string, _ string, body, status string) (messaging.Message, error) {
	w.inserted = true
	w.body = body
	w.status = status
	return messaging.Message{ID: uuid.New(), ConversationID: conversationID, Body: body, Status: status}, nil
}

func (w *fakeWriter) TouchOutbound(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}

type fakeSender struct {
	called     bool
	body       string
	providerID string
	err        error
}

func (s *fakeSender) Send(_ context.Context, _ string, body string) (string, error) {
	s.called = true
	s.body = body
	if s.err != nil {
		return "", s.err
	}
	return s.providerID, nil
}

func newTestDispatcher(store *fakeStore, writer *fakeWriter, sender *fakeSender) *Dispatcher {
	return newTestDispatcherWithTasks(store, writer, sender, &fakeTasks{})
}

func newTestDispatcherWithTasks(store *fakeStore, writer *fakeWriter, sender *fakeSender, taskRepo *fakeTasks) *Dispatcher {
	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	return NewDispatcher(store, writer, sender, taskRepo, bus, 1000, time.Minute, "worker-test", log)
}

func testRequest() DispatchRequest {
	leadID := uuid.New()
	return DispatchRequest{
		ConversationID: uuid.New(),
		LeadID:         &leadID,
		TriggerID:      uuid.New(),
		Channel:        "whatsapp",
		ToAddress:      "971501234567",
		QuestionKey:    "name",
		Fallback:       "May I have your full name, please?",
	}
}

func TestSendReplySuccess(t *testing.T) {
	store := &fakeStore{}
	writer := &fakeWriter{}
	sender := &fakeSender{providerID: "wamid.1"}
	d := newTestDispatcher(store, writer, sender)

	res, err := d.SendReply(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if !res.Sent || res.Skipped {
		t.Fatalf("expected sent result, got %+v", res)
	}
	if res.ProviderMessageID != "wamid.1" {
		t.Errorf("provider message ID = %q, want wamid.1", res.ProviderMessageID)
	}
	if !writer.inserted || writer.status != messaging.MessageSent {
		t.Errorf("outbound message not persisted as sent: %+v", writer)
	}
	if writer.body != "May I have your full name, please?" {
		t.Errorf("sent body = %q", writer.body)
	}
	if store.status != messaging.OutboundSent {
		t.Errorf("reply record status = %q, want sent", store.status)
	}
}

func TestSendReplyRecordsBeforeSend(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{providerID: "wamid.1"}
	d := newTestDispatcher(store, &fakeWriter{}, sender)

	if _, err := d.SendReply(context.Background(), testRequest()); err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if len(store.calls) == 0 || store.calls[0] != "record" {
		t.Fatalf("expected record as first store call, got %v", store.calls)
	}
	if !sender.called {
		t.Fatal("sender was not called")
	}
}

func TestSendReplySkipsDuplicateTrigger(t *testing.T) {
	store := &fakeStore{duplicate: true}
	sender := &fakeSender{}
	d := newTestDispatcher(store, &fakeWriter{}, sender)

	res, err := d.SendReply(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected skip on duplicate trigger")
	}
	if sender.called {
		t.Fatal("sender must not be called for a duplicate trigger")
	}
}

func TestSendReplyLockBusy(t *testing.T) {
	store := &fakeStore{leaseBusy: true}
	sender := &fakeSender{}
	d := newTestDispatcher(store, &fakeWriter{}, sender)

	res, err := d.SendReply(context.Background(), testRequest())
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("error = %v, want ErrLockBusy", err)
	}
	if !res.Skipped {
		t.Fatal("expected skip when lease is busy")
	}
	if sender.called {
		t.Fatal("sender must not be called without the lease")
	}
	if store.status != "" {
		t.Errorf("reply claim not released, status = %q", store.status)
	}
}

func TestSendReplyTerminalFailure(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{err: &whatsapp.SendError{Class: whatsapp.ClassAuth, StatusCode: 401, Message: "unauthorized"}}
	taskRepo := &fakeTasks{}
	d := newTestDispatcherWithTasks(store, &fakeWriter{}, sender, taskRepo)

	_, err := d.SendReply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNoRetry(err) {
		t.Errorf("auth failure must not be retried: %v", err)
	}
	if store.status != messaging.OutboundFailed {
		t.Errorf("reply record status = %q, want failed", store.status)
	}
	if len(taskRepo.kinds) != 1 || taskRepo.kinds[0] != tasks.KindSendFailure {
		t.Errorf("expected one send-failure task, got %v", taskRepo.kinds)
	}
}

func TestSendReplyRetryableFailureReleasesClaim(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{err: &whatsapp.SendError{Class: whatsapp.ClassRateLimited, StatusCode: 429, Message: "slow down"}}
	d := newTestDispatcher(store, &fakeWriter{}, sender)

	_, err := d.SendReply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if IsNoRetry(err) {
		t.Errorf("rate limit must be retryable: %v", err)
	}
	if store.status != "" {
		t.Errorf("reply claim not released, status = %q", store.status)
	}
}

func TestSendReplyAmbiguousFailureKeepsClaim(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{err: &whatsapp.SendError{Class: whatsapp.ClassTransient, Message: "connection reset", Ambiguous: true}}
	d := newTestDispatcher(store, &fakeWriter{}, sender)

	_, err := d.SendReply(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNoRetry(err) {
		t.Errorf("ambiguous failure must not be retried: %v", err)
	}
	// The message may have reached the provider. The pending claim stays
	// until the reconcile sweep flags it.
	if store.status != messaging.OutboundPending {
		t.Errorf("reply claim status = %q, want pending", store.status)
	}
	for _, call := range store.calls {
		if call == "release" || call == "fail" {
			t.Errorf("claim must stay untouched after ambiguous failure, got %v", store.calls)
		}
	}
}

func TestSendReplyGenerateFallback(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{providerID: "wamid.2"}
	d := newTestDispatcher(store, &fakeWriter{}, sender)

	req := testRequest()
	req.Generate = func(context.Context) (string, error) {
		return "", errors.New("model unavailable")
	}

	if _, err := d.SendReply(context.Background(), req); err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if sender.body != req.Fallback {
		t.Errorf("body = %q, want fallback %q", sender.body, req.Fallback)
	}
}

func TestSendReplyGeneratedText(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{providerID: "wamid.3"}
	d := newTestDispatcher(store, &fakeWriter{}, sender)

	req := testRequest()
	req.Generate = func(context.Context) (string, error) {
		return "Hello! Could you share your full name so we can proceed?", nil
	}

	if _, err := d.SendReply(context.Background(), req); err != nil {
		t.Fatalf("SendReply() error = %v", err)
	}
	if sender.body != "Hello! Could you share your full name so we can proceed?" {
		t.Errorf("body = %q, want generated text", sender.body)
	}
}
