package extracted

// State is the terminal state of one extraction attempt.
type State string

const (
	// StateParsed means the model output was parsed and validated.
	StateParsed State = "parsed"
	// StateDegraded means the call or the parse failed and filters are empty.
	StateDegraded State = "degraded"
	// StateSkipped means there was nothing to extract from.
	StateSkipped State = "skipped"
)

// Outcome is what an extraction attempt resolves to. Filters is always usable.
type Outcome struct {
	State   State
	Filters Filters
	Err     error
}

// Parsed returns a successful outcome.
func Parsed(f Filters) Outcome {
	return Outcome{State: StateParsed, Filters: f}
}

// Degraded returns an outcome with empty filters and the cause kept for logging.
func Degraded(err error) Outcome {
	return Outcome{State: StateDegraded, Err: err}
}

// Skipped returns an outcome with empty filters for blank input.
func Skipped() Outcome {
	return Outcome{State: StateSkipped}
}

// IsDegraded reports whether the extraction fell back to empty filters after a failure.
func (o Outcome) IsDegraded() bool { return o.State == StateDegraded }
