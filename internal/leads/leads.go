// Package leads owns the lead pipeline: one business opportunity per
// contact, reused across messages while it stays open, advanced through a
// closed set of stages.
package leads

// Stage is the pipeline state of a lead. The set is closed; stage strings
// in the database always come from this list.
type Stage string

const (
	StageNew       Stage = "new"
	StageEngaged   Stage = "engaged"
	StageQualified Stage = "qualified"
	StageHandover  Stage = "handover"
	StageWon       Stage = "won"
	StageLost      Stage = "lost"
	StageAbandoned Stage = "abandoned"
)

// terminalStages are stages in which a lead can no longer be reused for new
// inbound messages; a fresh lead is created instead.
var terminalStages = []Stage{StageWon, StageLost, StageAbandoned}

// IsTerminal reports whether the stage closes the lead.
func (s Stage) IsTerminal() bool {
	for _, t := range terminalStages {
		if s == t {
			return true
		}
	}
	return false
}

// IsValid reports whether the stage is one of the known pipeline states.
func (s Stage) IsValid() bool {
	switch s {
	case StageNew, StageEngaged, StageQualified, StageHandover, StageWon, StageLost, StageAbandoned:
		return true
	}
	return false
}
