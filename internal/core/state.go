package core

// CheckPhase identifies where a timing check is in its lifecycle.
type CheckPhase int

const (
	// PhaseProbing covers the initial ascending delay sequence.
	PhaseProbing CheckPhase = iota
	// PhaseConfirming covers the re-probing rounds after the delay generator
	// wrapped around: the remaining time budget forces delays back to small
	// values, which re-tests the low end of the curve with fresh samples.
	PhaseConfirming
	// PhaseDone means the check has produced its verdict.
	PhaseDone
)

// String returns the phase name for logs.
func (p CheckPhase) String() string {
	switch p {
	case PhaseProbing:
		return "probing"
	case PhaseConfirming:
		return "confirming"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}
