// Package policy gates plans on observing constraints. Constraints are
// expressed as Rego policies evaluated against the plan record and the
// current observing conditions; violations of error severity reject the
// plan before any unit is probed.
package policy

import (
	"time"
)

// Severity represents the severity level of a constraint violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for conditions worth an operator's attention.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that reject the plan.
	SeverityError Severity = "error"
)

// Policy is one constraint rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation is one constraint the plan does not satisfy.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result is the outcome of gating one plan.
type Result struct {
	// Allowed indicates whether the plan may execute.
	Allowed bool `json:"allowed"`

	// Violations lists all constraint violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the plan.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the gate ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Details renders the violations as operator-facing detail strings.
func (r *Result) Details() []string {
	details := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		details = append(details, v.Message)
	}
	return details
}

// Conditions are the current observing conditions at the site, as
// sampled by an external monitor. Distances are degrees, seeing is
// arcseconds, moon phase is fractional illumination.
type Conditions struct {
	MoonPhase    float64 `json:"moon_phase"`
	MoonDistance float64 `json:"moon_distance"`
	Airmass      float64 `json:"airmass"`
	Seeing       float64 `json:"seeing"`
}

// input is the document handed to Rego evaluation.
type input struct {
	Plan       any        `json:"plan"`
	Conditions Conditions `json:"conditions"`
	Timestamp  time.Time  `json:"timestamp"`
}
