package plan

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// recordSchema constrains plan records beyond what TOML decoding
// enforces: coordinate ranges, positive quorum, known instruments.
const recordSchema = `
#Record: {
	task: {
		id?:                string
		file?:              string
		owner?:             string
		merit:              int & >=1
		quorum:             int & >=1
		timeout_to_guiding: int & >=0
		production:         bool
		autofocus?:         bool
		run_folder?:        string
	}

	unit: {
		[string]: {
			ra:  number & >=0 & <24
			dec: number & >=-90 & <=90
		}
	}

	spec?: {
		instrument: "deepspec" | "highspec"
		...
	}

	constraints?: {
		moon?: {
			max_phase:    number & >=0 & <=1
			min_distance: number & >=0
		}
		airmass?: {
			max: number & >0
		}
		seeing?: {
			max: number & >0
		}
	}

	events?: [...{
		what:     string
		details?: [...string]
		when:     string
	}]
}
`

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
)

func compiledSchema() (cue.Value, *cue.Context, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaValue = schemaCtx.CompileString(recordSchema)
	})
	if err := schemaValue.Err(); err != nil {
		return cue.Value{}, nil, fmt.Errorf("failed to compile record schema: %w", err)
	}
	return schemaValue.LookupPath(cue.ParsePath("#Record")), schemaCtx, nil
}

// ValidateRecord checks a decoded record against the schema.
func ValidateRecord(r *Record) error {
	schema, ctx, err := compiledSchema()
	if err != nil {
		return err
	}

	dataVal := ctx.Encode(r)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid plan record: %w", err)
	}

	if len(r.Units) == 0 {
		return fmt.Errorf("invalid plan record: no unit targets")
	}
	return nil
}
