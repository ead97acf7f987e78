package remote

import (
	"encoding/json"
	"fmt"

	"github.com/specfleet/specfleet/pkg/activity"
)

// Status is the component status every unit and the spectrograph return from
// GET /status. The field names are wire contract.
type Status struct {
	// Operational is the peer's self-reported business-level health,
	// distinct from mere reachability.
	Operational bool `json:"operational"`

	// WhyNotOperational lists the reasons when Operational is false.
	WhyNotOperational []string `json:"why_not_operational,omitempty"`

	// Activities is the peer's current activity bitmask.
	Activities activity.Flag `json:"activities"`

	// ActivitiesVerbal names the raised bits, when the peer supplies them.
	ActivitiesVerbal []string `json:"activities_verbal,omitempty"`
}

// IsIdle reports whether the peer has no activity in progress.
func (s *Status) IsIdle() bool {
	return s.Activities == activity.Idle
}

// DecodeStatus converts a canonical response value into a Status. The value
// arrives as generic JSON (a map), so it is round-tripped through encoding.
func DecodeStatus(value any) (*Status, error) {
	if value == nil {
		return nil, fmt.Errorf("status value is nil")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("re-encode status value: %w", err)
	}

	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}
