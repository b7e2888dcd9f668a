package flow

import (
	"strings"
)

// Input carries everything the machine may consume from one inbound
// message. Answers holds extracted fields already keyed by question key;
// Body is the raw text used as a last-resort answer to the pending question.
type Input struct {
	Body              string
	Answers           map[QuestionKey]string
	ServiceIntent     string
	DiscountRequested bool
}

// Machine advances conversation flow state. It is pure: Advance never does
// I/O and never mutates its arguments, so every transition is testable as a
// literal input/output pair.
type Machine struct {
	defaultCeiling int
}

// NewMachine creates a machine with the given machine-wide question ceiling.
func NewMachine(maxQuestions int) *Machine {
	if maxQuestions < 1 {
		maxQuestions = 5
	}
	return &Machine{defaultCeiling: maxQuestions}
}

// freeTextQuestions may be answered by a short free-text reply to the
// pending question. Date and numeric questions require a parsed value.
var freeTextQuestions = map[QuestionKey]bool{
	QuestionName:        true,
	QuestionNationality: true,
	QuestionSponsor:     true,
}

// Advance runs one transition: absorb answers from the inbound message,
// select the flow on first contact, check escape hatches, then either ask
// the next unanswered question, complete, or hand over.
func (m *Machine) Advance(state State, in Input) Decision {
	if state.Step.IsTerminal() {
		return Decision{Kind: DecisionNone, Next: state}
	}

	next := state.clone()
	absorbAnswers(&next, in)

	if next.Key == "" {
		next.Key = FlowForIntent(in.ServiceIntent)
		if in.ServiceIntent != "" && !next.Has(QuestionService) {
			next.Collected[string(QuestionService)] = in.ServiceIntent
		}
	}

	if in.DiscountRequested {
		next.Step = StepHandover
		return Decision{Kind: DecisionHandover, Reason: ReasonDiscountRequested, Next: next}
	}
	if IsRestrictedIntent(in.ServiceIntent) {
		next.Step = StepHandover
		return Decision{Kind: DecisionHandover, Reason: ReasonRestrictedCategory, Next: next}
	}

	def := DefinitionFor(next.Key)
	question, ok := nextUnanswered(def, next)
	if !ok {
		next.Step = StepCompleted
		next.LastQuestionKey = ""
		return Decision{Kind: DecisionComplete, WrapUp: def.WrapUp, Next: next}
	}

	ceiling := def.MaxQuestions
	if ceiling < 1 {
		ceiling = m.defaultCeiling
	}
	if next.QuestionsAsked >= ceiling {
		next.Step = StepHandover
		return Decision{Kind: DecisionHandover, Reason: ReasonQuestionCeiling, Next: next}
	}

	next.Step = StepAwaitingAnswer
	next.LastQuestionKey = question.Key
	next.QuestionsAsked++
	return Decision{Kind: DecisionAsk, Question: question, Next: next}
}

// absorbAnswers merges extracted fields into collected data additively, then
// falls back to treating a short free-text body as the answer to the pending
// question. Existing answers are never overwritten.
func absorbAnswers(state *State, in Input) {
	for key, value := range in.Answers {
		value = strings.TrimSpace(value)
		if value == "" || state.Has(key) {
			continue
		}
		state.Collected[string(key)] = value
	}

	pending := state.LastQuestionKey
	if pending == "" || state.Has(pending) || !freeTextQuestions[pending] {
		return
	}
	body := strings.TrimSpace(in.Body)
	if body == "" || len(body) > 80 {
		return
	}
	state.Collected[string(pending)] = body
}

func nextUnanswered(def Definition, state State) (Question, bool) {
	for _, q := range def.Questions {
		if !state.Has(q.Key) {
			return q, true
		}
	}
	return Question{}, false
}
