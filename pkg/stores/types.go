package stores

import (
	"time"
)

// TerminationReason is the terminal outcome of a plan execution.
type TerminationReason string

const (
	ReasonCompleted TerminationReason = "completed"
	ReasonFailed    TerminationReason = "failed"
	ReasonRejected  TerminationReason = "rejected"
)

// Valid reports whether the reason is one of the terminal outcomes.
func (r TerminationReason) Valid() bool {
	switch r {
	case ReasonCompleted, ReasonFailed, ReasonRejected:
		return true
	}
	return false
}

// Execution is one archived plan execution.
type Execution struct {
	// PlanID is the plan's unique identifier.
	PlanID string `json:"plan_id"`

	// Owner is the plan's submitter, if recorded.
	Owner string `json:"owner,omitempty"`

	// Instrument is the spectrograph instrument the plan targeted.
	Instrument string `json:"instrument,omitempty"`

	// Quorum is the plan's required unit count.
	Quorum int `json:"quorum"`

	// Committed is how many units accepted the assignment.
	Committed int `json:"committed"`

	// Reason is the terminal outcome.
	Reason TerminationReason `json:"reason"`

	// Details are the operator-facing strings explaining the outcome.
	Details []string `json:"details,omitempty"`

	// RecordPath is where the archived TOML record lives.
	RecordPath string `json:"record_path,omitempty"`

	// StartedAt and TerminatedAt bound the execution.
	StartedAt    time.Time `json:"started_at"`
	TerminatedAt time.Time `json:"terminated_at"`

	// Events is the plan's audit trail.
	Events []ExecutionEvent `json:"events,omitempty"`
}

// Duration returns the execution's wall-clock duration.
func (e *Execution) Duration() time.Duration {
	return e.TerminatedAt.Sub(e.StartedAt)
}

// ExecutionEvent is one audit trail entry of an archived execution.
type ExecutionEvent struct {
	What    string    `json:"what"`
	Details []string  `json:"details,omitempty"`
	At      time.Time `json:"at"`
}
