package engine

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/specfleet/specfleet/pkg/config"
	"github.com/specfleet/specfleet/pkg/plan"
)

const fleetConfig = `
service:
  data_dir: /var/lib/specfleet
engine:
  mode: production
sites:
  - name: wis
    project: mast
    local: true
    spec_host: spec
    deployed_units: "1-3"
`

func newFleetEngine(t *testing.T) (*Engine, *plan.Store) {
	t.Helper()

	cfg, err := config.Parse([]byte(fleetConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	store, err := plan.NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return New(cfg, store, zerolog.Nop()), store
}

func TestResolveFleet(t *testing.T) {
	eng, _ := newFleetEngine(t)

	rec := &plan.Record{
		Task: plan.Settings{ID: "p1", Quorum: 2},
		Units: map[string]plan.Target{
			"1": {RA: 3.5, Dec: 10},
			"2": {RA: 3.5, Dec: 10},
		},
		Spec: map[string]any{"instrument": "highspec"},
	}

	fleet, err := eng.ResolveFleet(rec)
	if err != nil {
		t.Fatalf("ResolveFleet: %v", err)
	}
	if len(fleet.Units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(fleet.Units))
	}

	units := map[string]bool{}
	for _, u := range fleet.Units {
		units[u.Ref.String()] = true
		if u.Endpoint == nil {
			t.Errorf("Unit %s has no endpoint", u.Ref)
		}
		if u.Assignment.Target.RA != 3.5 {
			t.Errorf("Unit %s assignment target not carried: %+v", u.Ref, u.Assignment.Target)
		}
	}
	if !units["wis:mast01"] || !units["wis:mast02"] {
		t.Errorf("Unexpected unit refs: %v", units)
	}

	if fleet.Spec == nil {
		t.Error("No spectrograph endpoint")
	}
	if fleet.SpecAssignment == nil || fleet.SpecAssignment.Instrument != "highspec" {
		t.Errorf("Unexpected spec assignment: %+v", fleet.SpecAssignment)
	}
}

func TestResolveFleetUnknownUnit(t *testing.T) {
	eng, _ := newFleetEngine(t)

	rec := &plan.Record{
		Task:  plan.Settings{ID: "p2", Quorum: 1},
		Units: map[string]plan.Target{"9": {RA: 3.5, Dec: 10}},
		Spec:  map[string]any{"instrument": "deepspec"},
	}

	_, err := eng.ResolveFleet(rec)
	if err == nil {
		t.Fatal("Expected an unknown unit to fail resolution")
	}
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Class != ErrorClassPermanent {
		t.Errorf("Expected a permanent error, got %v", err)
	}
}

func TestResolveFleetBadTarget(t *testing.T) {
	eng, _ := newFleetEngine(t)

	rec := &plan.Record{
		Task:  plan.Settings{ID: "p3", Quorum: 1},
		Units: map[string]plan.Target{"1": {RA: 30, Dec: 10}},
		Spec:  map[string]any{"instrument": "deepspec"},
	}

	if _, err := eng.ResolveFleet(rec); err == nil {
		t.Fatal("Expected an out-of-range target to fail resolution")
	}
}
