package dream

// Phase is a step of the dream cycle. A cycle moves strictly forward
// through Collecting, Generating, Persisting, Distilling and Finalizing,
// then returns to Idle. An aborted cycle returns to Idle from wherever it
// stopped.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCollecting
	PhaseGenerating
	PhasePersisting
	PhaseDistilling
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCollecting:
		return "collecting"
	case PhaseGenerating:
		return "generating"
	case PhasePersisting:
		return "persisting"
	case PhaseDistilling:
		return "distilling"
	case PhaseFinalizing:
		return "finalizing"
	}
	return "unknown"
}

// Outcome distinguishes a cycle that had nothing to do from one that
// produced a dream.
type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomeDreamed
)

func (o Outcome) String() string {
	if o == OutcomeDreamed {
		return "dreamed"
	}
	return "noop"
}

// MarshalText renders the outcome by name in JSON output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
