package plan

import (
	"strings"
	"testing"
)

func validRecord() *Record {
	return &Record{
		Task: Settings{
			Merit:            1,
			Quorum:           2,
			TimeoutToGuiding: 600,
			Production:       true,
		},
		Units: map[string]Target{
			"1-3": {RA: 12.34, Dec: -25.5},
		},
		Spec: map[string]any{
			"instrument":          "deepspec",
			"exposure_duration":   30.0,
			"number_of_exposures": 4,
		},
	}
}

func TestValidateRecord(t *testing.T) {
	if err := ValidateRecord(validRecord()); err != nil {
		t.Fatalf("Expected valid record, got %v", err)
	}
}

func TestValidateRecordRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Record)
	}{
		{"ra out of range", func(r *Record) { r.Units["1-3"] = Target{RA: 24.5, Dec: 0} }},
		{"dec out of range", func(r *Record) { r.Units["1-3"] = Target{RA: 1, Dec: -91} }},
		{"zero quorum", func(r *Record) { r.Task.Quorum = 0 }},
		{"unknown instrument", func(r *Record) { r.Spec["instrument"] = "echelle" }},
		{"no units", func(r *Record) { r.Units = map[string]Target{} }},
		{"negative moon distance", func(r *Record) {
			r.Constraints = &Constraints{Moon: &MoonConstraint{MaxPhase: 0.5, MinDistance: -10}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.mutate(rec)
			if err := ValidateRecord(rec); err == nil {
				t.Error("Expected validation failure")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	rec := &Record{Units: map[string]Target{"1": {RA: 1, Dec: 1}}}
	rec.ApplyDefaults()

	if rec.Task.Merit != 1 || rec.Task.Quorum != 1 {
		t.Errorf("Defaults not applied: %+v", rec.Task)
	}
	if rec.Task.TimeoutToGuiding != 600 {
		t.Errorf("Expected 600s guiding timeout default, got %d", rec.Task.TimeoutToGuiding)
	}
}

func TestInstrument(t *testing.T) {
	rec := validRecord()
	instrument, err := rec.Instrument()
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if instrument != "deepspec" {
		t.Errorf("Expected deepspec, got %s", instrument)
	}

	rec.Spec = nil
	if _, err := rec.Instrument(); err == nil {
		t.Error("Expected error without a spec section")
	}
}

func TestAppendEventStampsUTC(t *testing.T) {
	rec := validRecord()
	rec.AppendEvent("rejected", []string{"only 1 units (quorum: 2)"})

	if len(rec.Events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(rec.Events))
	}
	ev := rec.Events[0]
	if ev.What != "rejected" {
		t.Errorf("Unexpected what: %s", ev.What)
	}
	if !strings.HasSuffix(ev.When, "Z") {
		t.Errorf("Expected UTC timestamp, got %s", ev.When)
	}
}

func TestSpecAssignment(t *testing.T) {
	rec := validRecord()
	init := Initiator{Hostname: "controller"}

	sa, err := rec.SpecAssignmentFor(init)
	if err != nil {
		t.Fatalf("SpecAssignmentFor: %v", err)
	}
	if sa.Instrument != "deepspec" {
		t.Errorf("Unexpected instrument: %s", sa.Instrument)
	}
	if sa.Task.Quorum != 2 {
		t.Errorf("Task settings not carried: %+v", sa.Task)
	}

	ua := rec.UnitAssignmentFor(Target{RA: 5, Dec: 10}, init)
	if ua.Target.RA != 5 || ua.Initiator.Hostname != "controller" {
		t.Errorf("Unexpected unit assignment: %+v", ua)
	}
}

func TestNewIDSortable(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatal("Expected distinct ids")
	}
	if a > b {
		t.Errorf("Expected ids to sort by creation: %s >= %s", a, b)
	}
}
