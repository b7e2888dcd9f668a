// Package flow provides the conversation flow state machine for the
// messaging bounded context. Flow keys, steps, and question keys are closed
// sets; transitions only happen through the Machine so the no-repeat-question
// and question-ceiling invariants hold for every conversation.
package flow

// Key identifies a conversational script (topic).
type Key string

const (
	KeyFamilyVisa     Key = "family_visa"
	KeyEmploymentVisa Key = "employment_visa"
	KeyVisitVisa      Key = "visit_visa"
	KeyVisaRenewal    Key = "visa_renewal"
	KeyGeneral        Key = "general"
)

// Step identifies where a conversation is inside its flow.
type Step string

const (
	// StepIntake is the initial step before a flow key has been selected.
	StepIntake Step = "intake"
	// StepAwaitingAnswer means a question was asked and the flow waits for
	// the contact's reply.
	StepAwaitingAnswer Step = "awaiting_answer"
	// StepHandover is terminal: automated questioning stops and a human
	// takes over.
	StepHandover Step = "handover"
	// StepCompleted is terminal: all required data was collected.
	StepCompleted Step = "completed"
)

// IsTerminal reports whether the step allows no further automated questions.
func (s Step) IsTerminal() bool {
	return s == StepHandover || s == StepCompleted
}

// QuestionKey identifies one piece of data a flow collects. Question keys
// double as the field keys in the collected-data map, which is what makes
// "never re-ask an answered question" checkable.
type QuestionKey string

const (
	QuestionName        QuestionKey = "name"
	QuestionNationality QuestionKey = "nationality"
	QuestionService     QuestionKey = "service"
	QuestionExpiryDate  QuestionKey = "expiry_date"
	QuestionPartySize   QuestionKey = "party_size"
	QuestionSponsor     QuestionKey = "sponsor_status"
	QuestionEntryDate   QuestionKey = "entry_date"
	QuestionEmail       QuestionKey = "email"
)

// Question is one scripted prompt within a flow.
type Question struct {
	Key    QuestionKey
	Prompt string
}

// Definition describes one flow: its ordered required questions and an
// optional per-flow question ceiling override.
type Definition struct {
	Key          Key
	Questions    []Question
	MaxQuestions int // 0 means use the machine-wide ceiling
	WrapUp       string
}

// State is the persisted automaton state for one conversation. The zero
// value is a fresh conversation: no flow selected, nothing collected.
type State struct {
	Key             Key
	Step            Step
	LastQuestionKey QuestionKey
	QuestionsAsked  int
	Collected       map[string]string
}

// Has reports whether an answer for the question key has been collected.
func (s State) Has(key QuestionKey) bool {
	if s.Collected == nil {
		return false
	}
	_, ok := s.Collected[string(key)]
	return ok
}

// clone returns a copy with its own collected-data map so Advance never
// mutates the caller's state.
func (s State) clone() State {
	out := s
	out.Collected = make(map[string]string, len(s.Collected)+2)
	for k, v := range s.Collected {
		out.Collected[k] = v
	}
	return out
}

// HandoverReason explains why a conversation left automated questioning.
type HandoverReason string

const (
	ReasonQuestionCeiling    HandoverReason = "question_ceiling_reached"
	ReasonDiscountRequested  HandoverReason = "discount_requested"
	ReasonRestrictedCategory HandoverReason = "restricted_category"
)

// DecisionKind enumerates what the machine wants to happen next.
type DecisionKind string

const (
	// DecisionAsk means send the contained question as the next reply.
	DecisionAsk DecisionKind = "ask"
	// DecisionHandover means stop asking and escalate to a human.
	DecisionHandover DecisionKind = "handover"
	// DecisionComplete means all required data is collected; send the wrap-up.
	DecisionComplete DecisionKind = "complete"
	// DecisionNone means the flow is already terminal; send nothing.
	DecisionNone DecisionKind = "none"
)

// Decision is the outcome of advancing the machine on one inbound message.
// Next is the state the caller must persist before dispatching any reply.
type Decision struct {
	Kind     DecisionKind
	Question Question
	Reason   HandoverReason
	WrapUp   string
	Next     State
}
