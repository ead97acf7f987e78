// Package plan models observation plan records and their on-disk
// lifecycle. A plan is one TOML file that lives under the pending area
// while executing and is archived into completed or failed on
// termination. Events appended during execution form the audit trail.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Storage areas for plan records.
const (
	AreaPending   = "pending"
	AreaCompleted = "completed"
	AreaFailed    = "failed"
)

// Event is one entry of a plan's append-only audit trail.
type Event struct {
	What    string   `toml:"what" json:"what"`
	Details []string `toml:"details,omitempty" json:"details,omitempty"`
	When    string   `toml:"when" json:"when"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(what string, details []string) Event {
	return Event{
		What:    what,
		Details: details,
		When:    time.Now().UTC().Format(time.RFC3339),
	}
}

// Settings holds the general plan parameters.
type Settings struct {
	// ID is a sortable unique identifier, assigned on first load.
	ID string `toml:"id" json:"id"`

	// File is the absolute path of the backing record.
	File string `toml:"file,omitempty" json:"file,omitempty"`

	Owner string `toml:"owner,omitempty" json:"owner,omitempty"`
	Merit int    `toml:"merit" json:"merit"`

	// Quorum is the minimum number of units that must commit.
	Quorum int `toml:"quorum" json:"quorum"`

	// TimeoutToGuiding bounds the wait for all committed units to
	// start guiding, in seconds.
	TimeoutToGuiding int `toml:"timeout_to_guiding" json:"timeout_to_guiding"`

	// Production selects strict health rules. Debug plans tolerate
	// non-operational peers.
	Production bool `toml:"production" json:"production"`

	Autofocus bool `toml:"autofocus,omitempty" json:"autofocus,omitempty"`

	// RunFolder is where the units and the spectrograph deposit
	// acquisition products for this plan.
	RunFolder string `toml:"run_folder,omitempty" json:"run_folder,omitempty"`
}

// Target is an RA/Dec pair, decimal hours and degrees.
type Target struct {
	RA  float64 `toml:"ra" json:"ra"`
	Dec float64 `toml:"dec" json:"dec"`
}

// Validate checks the coordinate ranges.
func (t Target) Validate() error {
	if t.RA < 0 || t.RA >= 24 {
		return fmt.Errorf("ra %v out of range [0, 24)", t.RA)
	}
	if t.Dec < -90 || t.Dec > 90 {
		return fmt.Errorf("dec %v out of range [-90, 90]", t.Dec)
	}
	return nil
}

// MoonConstraint limits moon illumination and proximity.
type MoonConstraint struct {
	MaxPhase    float64 `toml:"max_phase" json:"max_phase"`
	MinDistance float64 `toml:"min_distance" json:"min_distance"`
}

// AirmassConstraint limits the target's airmass.
type AirmassConstraint struct {
	Max float64 `toml:"max" json:"max"`
}

// SeeingConstraint limits the acceptable seeing.
type SeeingConstraint struct {
	Max float64 `toml:"max" json:"max"`
}

// Constraints are the observing conditions a plan requires.
type Constraints struct {
	Moon    *MoonConstraint    `toml:"moon,omitempty" json:"moon,omitempty"`
	Airmass *AirmassConstraint `toml:"airmass,omitempty" json:"airmass,omitempty"`
	Seeing  *SeeingConstraint  `toml:"seeing,omitempty" json:"seeing,omitempty"`
}

// Record is a complete plan as persisted in its TOML file. Units is
// keyed by unit specifier; each key may resolve to several deployed
// units sharing one target.
type Record struct {
	Task        Settings          `toml:"task" json:"task"`
	Units       map[string]Target `toml:"unit" json:"unit"`
	Spec        map[string]any    `toml:"spec,omitempty" json:"spec,omitempty"`
	Constraints *Constraints      `toml:"constraints,omitempty" json:"constraints,omitempty"`
	Events      []Event           `toml:"events,omitempty" json:"events,omitempty"`
}

// NewID returns a fresh time-sortable plan identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does.
		return uuid.New().String()
	}
	return id.String()
}

// ApplyDefaults fills the fields a hand-written record may omit.
func (r *Record) ApplyDefaults() {
	if r.Task.Merit == 0 {
		r.Task.Merit = 1
	}
	if r.Task.Quorum == 0 {
		r.Task.Quorum = 1
	}
	if r.Task.TimeoutToGuiding == 0 {
		r.Task.TimeoutToGuiding = 600
	}
}

// GuidingTimeout returns the guiding wait bound as a duration.
func (r *Record) GuidingTimeout() time.Duration {
	return time.Duration(r.Task.TimeoutToGuiding) * time.Second
}

// AppendEvent adds an event to the in-memory audit trail.
func (r *Record) AppendEvent(what string, details []string) {
	r.Events = append(r.Events, NewEvent(what, details))
}

// Instrument returns the spectrograph instrument this plan targets.
func (r *Record) Instrument() (string, error) {
	if r.Spec == nil {
		return "", fmt.Errorf("plan has no spec section")
	}
	instrument, ok := r.Spec["instrument"].(string)
	if !ok || instrument == "" {
		return "", fmt.Errorf("missing 'instrument' in spec section")
	}
	if instrument != "deepspec" && instrument != "highspec" {
		return "", fmt.Errorf("bad instrument %q, must be 'deepspec' or 'highspec'", instrument)
	}
	return instrument, nil
}
