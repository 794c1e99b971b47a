package domain

// SessionStatus captures the processing lifecycle of a session.
type SessionStatus string

const (
	StatusCreated           SessionStatus = "created"
	StatusKeypointsUploaded SessionStatus = "keypoints_uploaded"
	StatusAnalyzing         SessionStatus = "analyzing"
	StatusVideoUploaded     SessionStatus = "video_uploaded"
	StatusCompleted         SessionStatus = "completed"
	StatusFailed            SessionStatus = "failed"
	StatusCancelled         SessionStatus = "cancelled"

	// Legacy unified-channel statuses. Kept for old clients only.
	StatusUploaded   SessionStatus = "uploaded"
	StatusProcessing SessionStatus = "processing"
)

// statusRank orders the forward chain. Legacy aliases slot into the same
// chain so monotonicity checks cover both generations.
var statusRank = map[SessionStatus]int{
	StatusCreated:           0,
	StatusKeypointsUploaded: 1,
	StatusUploaded:          1,
	StatusAnalyzing:         2,
	StatusProcessing:        2,
	StatusVideoUploaded:     3,
	StatusCompleted:         4,
}

// Rank returns the position of s on the forward chain, or -1 for statuses
// outside it (failed, cancelled).
func (s SessionStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further transition is allowed. failed is not
// terminal: an operator may retry analysis.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether moving from one status to another is legal.
// The chain only moves forward. Off-chain moves: any status may be cancelled
// by deletion, any non-terminal status may fail, failed may retry into
// analyzing, and analyzing falls back to keypoints_uploaded when job dispatch
// fails.
func CanTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	if to == StatusCancelled {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	if from == StatusAnalyzing && to == StatusKeypointsUploaded {
		return true
	}
	if from == StatusFailed {
		return to == StatusAnalyzing
	}
	fromRank, toRank := from.Rank(), to.Rank()
	if fromRank < 0 || toRank < 0 {
		return false
	}
	return toRank > fromRank
}
