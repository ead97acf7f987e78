package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileConditions reads the current observing conditions from a JSON
// file maintained by the site's environment monitor. The file is read
// on every call; a stale sample is refused.
type FileConditions struct {
	path   string
	maxAge time.Duration
}

// conditionsSample is the monitor's file format.
type conditionsSample struct {
	SampledAt  time.Time  `json:"sampled_at"`
	Conditions Conditions `json:"conditions"`
}

// NewFileConditions creates a provider over the monitor file. A zero
// maxAge accepts samples of any age.
func NewFileConditions(path string, maxAge time.Duration) *FileConditions {
	return &FileConditions{path: path, maxAge: maxAge}
}

// Conditions returns the latest sample.
func (f *FileConditions) Conditions(_ context.Context) (Conditions, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Conditions{}, fmt.Errorf("cannot read conditions file: %w", err)
	}

	var sample conditionsSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return Conditions{}, fmt.Errorf("invalid conditions file %s: %w", f.path, err)
	}

	if f.maxAge > 0 {
		age := time.Since(sample.SampledAt)
		if age > f.maxAge {
			return Conditions{}, fmt.Errorf("conditions sample is %s old (max %s)", age.Round(time.Second), f.maxAge)
		}
	}
	return sample.Conditions, nil
}
