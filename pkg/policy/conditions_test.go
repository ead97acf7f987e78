package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSample(t *testing.T, sampledAt time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conditions.json")
	data := `{
		"sampled_at": "` + sampledAt.UTC().Format(time.RFC3339) + `",
		"conditions": {"moon_phase": 0.4, "moon_distance": 55, "airmass": 1.3, "seeing": 1.1}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFileConditions(t *testing.T) {
	path := writeSample(t, time.Now())

	provider := NewFileConditions(path, time.Hour)
	cond, err := provider.Conditions(context.Background())
	if err != nil {
		t.Fatalf("Conditions: %v", err)
	}
	if cond.MoonPhase != 0.4 || cond.Seeing != 1.1 {
		t.Errorf("Sample not decoded: %+v", cond)
	}
}

func TestFileConditionsRefusesStaleSample(t *testing.T) {
	path := writeSample(t, time.Now().Add(-2*time.Hour))

	provider := NewFileConditions(path, time.Hour)
	if _, err := provider.Conditions(context.Background()); err == nil {
		t.Error("Expected a stale sample to be refused")
	}
}

func TestFileConditionsMissingFile(t *testing.T) {
	provider := NewFileConditions(filepath.Join(t.TempDir(), "absent.json"), 0)
	if _, err := provider.Conditions(context.Background()); err == nil {
		t.Error("Expected a missing file to fail")
	}
}
