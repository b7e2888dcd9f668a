package flow

import (
	"testing"
)

func TestAdvanceSelectsFlowFromIntent(t *testing.T) {
	m := NewMachine(5)

	d := m.Advance(State{}, Input{Body: "I need a family visa", ServiceIntent: "family_visa"})

	if d.Kind != DecisionAsk {
		t.Fatalf("expected ask decision, got %s", d.Kind)
	}
	if d.Next.Key != KeyFamilyVisa {
		t.Errorf("expected family_visa flow, got %s", d.Next.Key)
	}
	if d.Question.Key != QuestionName {
		t.Errorf("expected first question to be name, got %s", d.Question.Key)
	}
	if d.Next.Step != StepAwaitingAnswer {
		t.Errorf("expected awaiting_answer step, got %s", d.Next.Step)
	}
	if d.Next.QuestionsAsked != 1 {
		t.Errorf("expected questions asked 1, got %d", d.Next.QuestionsAsked)
	}
	if got := d.Next.Collected[string(QuestionService)]; got != "family_visa" {
		t.Errorf("expected service intent recorded, got %q", got)
	}
}

func TestAdvanceFromIntakeAsksFirstQuestion(t *testing.T) {
	m := NewMachine(5)

	// Intake is how a stored conversation without transitions loads; it must
	// behave exactly like the zero state.
	d := m.Advance(State{Step: StepIntake}, Input{Body: "I need a visit visa", ServiceIntent: "visit_visa"})

	if d.Kind != DecisionAsk {
		t.Fatalf("expected ask decision, got %s", d.Kind)
	}
	if d.Next.Key != KeyVisitVisa {
		t.Errorf("expected visit_visa flow, got %s", d.Next.Key)
	}
	if d.Next.Step != StepAwaitingAnswer {
		t.Errorf("expected awaiting_answer step, got %s", d.Next.Step)
	}
}

func TestAdvanceUnknownIntentFallsBackToGeneral(t *testing.T) {
	m := NewMachine(5)

	d := m.Advance(State{}, Input{Body: "hello"})

	if d.Next.Key != KeyGeneral {
		t.Errorf("expected general flow, got %s", d.Next.Key)
	}
	if d.Question.Key != QuestionService {
		t.Errorf("expected service question first, got %s", d.Question.Key)
	}
}

func TestAdvanceNeverRepeatsAnsweredQuestion(t *testing.T) {
	m := NewMachine(10)

	state := State{
		Key:             KeyFamilyVisa,
		Step:            StepAwaitingAnswer,
		LastQuestionKey: QuestionName,
		QuestionsAsked:  1,
		Collected:       map[string]string{string(QuestionService): "family_visa"},
	}

	d := m.Advance(state, Input{Body: "Ahmed Hassan"})
	if d.Kind != DecisionAsk {
		t.Fatalf("expected ask, got %s", d.Kind)
	}
	if d.Question.Key == QuestionName {
		t.Fatal("name question repeated after it was answered")
	}
	if got := d.Next.Collected[string(QuestionName)]; got != "Ahmed Hassan" {
		t.Errorf("expected free-text answer absorbed, got %q", got)
	}

	// Run the rest of the flow; every asked question key must be unique.
	seen := map[QuestionKey]int{d.Question.Key: 1}
	state = d.Next
	for i := 0; i < 10; i++ {
		d = m.Advance(state, Input{
			Answers: map[QuestionKey]string{d.Question.Key: "answer"},
		})
		if d.Kind != DecisionAsk {
			break
		}
		seen[d.Question.Key]++
		state = d.Next
	}
	for key, count := range seen {
		if count > 1 {
			t.Errorf("question %s asked %d times", key, count)
		}
	}
	if d.Kind != DecisionComplete {
		t.Errorf("expected flow to complete, got %s", d.Kind)
	}
}

func TestAdvanceAbsorbsExtractedAnswersBeforeAsking(t *testing.T) {
	m := NewMachine(5)

	// First message already carries name, nationality, and intent; the
	// machine must skip straight past those questions.
	d := m.Advance(State{}, Input{
		Body:          "Hi, I'm Ahmed from Egypt, need a family visa",
		ServiceIntent: "family_visa",
		Answers: map[QuestionKey]string{
			QuestionName:        "Ahmed",
			QuestionNationality: "Egypt",
		},
	})

	if d.Kind != DecisionAsk {
		t.Fatalf("expected ask, got %s", d.Kind)
	}
	if d.Question.Key == QuestionName || d.Question.Key == QuestionNationality {
		t.Errorf("asked %s even though it was answered in the same message", d.Question.Key)
	}
	if d.Question.Key != QuestionPartySize {
		t.Errorf("expected party_size next, got %s", d.Question.Key)
	}
}

func TestAdvanceDoesNotOverwriteCollectedAnswers(t *testing.T) {
	m := NewMachine(5)

	state := State{
		Key:             KeyFamilyVisa,
		Step:            StepAwaitingAnswer,
		LastQuestionKey: QuestionNationality,
		QuestionsAsked:  2,
		Collected: map[string]string{
			string(QuestionName): "Ahmed Hassan",
		},
	}

	d := m.Advance(state, Input{
		Body:    "Egypt",
		Answers: map[QuestionKey]string{QuestionName: "Somebody Else"},
	})

	if got := d.Next.Collected[string(QuestionName)]; got != "Ahmed Hassan" {
		t.Errorf("existing answer overwritten: got %q", got)
	}
	if got := d.Next.Collected[string(QuestionNationality)]; got != "Egypt" {
		t.Errorf("expected nationality from body, got %q", got)
	}
}

func TestAdvanceCeilingForcesHandover(t *testing.T) {
	m := NewMachine(2)

	state := State{
		Key:             KeyFamilyVisa,
		Step:            StepAwaitingAnswer,
		LastQuestionKey: QuestionNationality,
		QuestionsAsked:  2,
		Collected: map[string]string{
			string(QuestionName): "Ahmed",
		},
	}

	// Nationality gets answered but more questions remain; the ceiling must
	// force a handover instead of a third question.
	d := m.Advance(state, Input{Body: "Egypt"})

	if d.Kind != DecisionHandover {
		t.Fatalf("expected handover, got %s", d.Kind)
	}
	if d.Reason != ReasonQuestionCeiling {
		t.Errorf("expected ceiling reason, got %s", d.Reason)
	}
	if d.Next.Step != StepHandover {
		t.Errorf("expected handover step, got %s", d.Next.Step)
	}
	if d.Next.QuestionsAsked != 2 {
		t.Errorf("questions asked changed during handover: %d", d.Next.QuestionsAsked)
	}
}

func TestAdvanceDiscountRequestForcesHandover(t *testing.T) {
	m := NewMachine(5)

	state := State{
		Key:             KeyVisitVisa,
		Step:            StepAwaitingAnswer,
		LastQuestionKey: QuestionPartySize,
		QuestionsAsked:  1,
		Collected:       map[string]string{},
	}

	d := m.Advance(state, Input{Body: "can you give a discount?", DiscountRequested: true})

	if d.Kind != DecisionHandover {
		t.Fatalf("expected handover, got %s", d.Kind)
	}
	if d.Reason != ReasonDiscountRequested {
		t.Errorf("expected discount reason, got %s", d.Reason)
	}
}

func TestAdvanceRestrictedIntentForcesHandover(t *testing.T) {
	m := NewMachine(5)

	d := m.Advance(State{}, Input{Body: "I overstayed my visa", ServiceIntent: "visa_overstay"})

	if d.Kind != DecisionHandover {
		t.Fatalf("expected handover, got %s", d.Kind)
	}
	if d.Reason != ReasonRestrictedCategory {
		t.Errorf("expected restricted reason, got %s", d.Reason)
	}
}

func TestAdvanceCompletesWhenAllQuestionsAnswered(t *testing.T) {
	m := NewMachine(5)

	state := State{
		Key:             KeyVisaRenewal,
		Step:            StepAwaitingAnswer,
		LastQuestionKey: QuestionNationality,
		QuestionsAsked:  3,
		Collected: map[string]string{
			string(QuestionName):       "Maria Santos",
			string(QuestionExpiryDate): "2026-11-01",
		},
	}

	d := m.Advance(state, Input{Body: "Philippines", Answers: map[QuestionKey]string{QuestionNationality: "Philippines"}})

	if d.Kind != DecisionComplete {
		t.Fatalf("expected complete, got %s", d.Kind)
	}
	if d.WrapUp == "" {
		t.Error("expected wrap-up text")
	}
	if d.Next.Step != StepCompleted {
		t.Errorf("expected completed step, got %s", d.Next.Step)
	}
}

func TestAdvanceTerminalStateIsInert(t *testing.T) {
	m := NewMachine(5)

	for _, step := range []Step{StepHandover, StepCompleted} {
		state := State{Key: KeyGeneral, Step: step, QuestionsAsked: 3}
		d := m.Advance(state, Input{Body: "hello again"})
		if d.Kind != DecisionNone {
			t.Errorf("step %s: expected none, got %s", step, d.Kind)
		}
	}
}

func TestAdvanceDoesNotMutateCallerState(t *testing.T) {
	m := NewMachine(5)

	collected := map[string]string{string(QuestionName): "Ahmed"}
	state := State{
		Key:             KeyFamilyVisa,
		Step:            StepAwaitingAnswer,
		LastQuestionKey: QuestionNationality,
		QuestionsAsked:  2,
		Collected:       collected,
	}

	m.Advance(state, Input{Body: "Egypt"})

	if len(collected) != 1 {
		t.Errorf("caller's collected map mutated: %v", collected)
	}
	if state.QuestionsAsked != 2 || state.Step != StepAwaitingAnswer {
		t.Errorf("caller's state mutated: %+v", state)
	}
}

func TestAdvanceFreeTextIgnoredForStructuredQuestions(t *testing.T) {
	m := NewMachine(5)

	state := State{
		Key:             KeyFamilyVisa,
		Step:            StepAwaitingAnswer,
		LastQuestionKey: QuestionExpiryDate,
		QuestionsAsked:  1,
		Collected:       map[string]string{},
	}

	// "soon" is not a parseable date; it must not be stored as one.
	d := m.Advance(state, Input{Body: "soon"})

	if _, ok := d.Next.Collected[string(QuestionExpiryDate)]; ok {
		t.Error("free text stored as expiry date")
	}
}
