package types

type OutcomeStatus int32

const (
	None     OutcomeStatus = 0
	Recorded OutcomeStatus = 1
	Untested OutcomeStatus = 2
	Passed   OutcomeStatus = 3
	Failed   OutcomeStatus = 4
	Faulted  OutcomeStatus = 5
)

// Evaluated reports whether the event has left the Recorded state.
func (s OutcomeStatus) Evaluated() bool {
	return s == Untested || s == Passed || s == Failed || s == Faulted
}

/**
 * Violation reports whether the outcome is a business-rule breach:
 * either the validator returned false or it faulted while evaluating.
 */
func (s OutcomeStatus) Violation() bool {
	return s == Failed || s == Faulted
}

func (s OutcomeStatus) String() string {
	switch s {
	case Recorded:
		return "recorded"
	case Untested:
		return "untested"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Faulted:
		return "faulted"
	}
	return "none"
}
