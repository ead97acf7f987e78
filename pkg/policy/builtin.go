package policy

// BuiltinPolicies returns the built-in observing constraint policies.
func BuiltinPolicies() []Policy {
	return []Policy{
		moonPolicy(),
		airmassPolicy(),
		seeingPolicy(),
	}
}

// moonPolicy rejects plans whose moon constraints are not met.
func moonPolicy() Policy {
	return Policy{
		Name:        "moon-constraint",
		Description: "Rejects plans when the moon is too bright or too close to the target",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"constraints", "moon"},
		Rego: `package specfleet.constraints.moon

import rego.v1

deny contains violation if {
	input.plan.constraints.moon
	input.conditions.moon_phase > input.plan.constraints.moon.max_phase
	violation := {
		"message": sprintf("moon phase %.2f exceeds max %.2f", [input.conditions.moon_phase, input.plan.constraints.moon.max_phase]),
		"severity": "error",
	}
}

deny contains violation if {
	input.plan.constraints.moon
	input.conditions.moon_distance < input.plan.constraints.moon.min_distance
	violation := {
		"message": sprintf("moon distance %.1f deg below min %.1f deg", [input.conditions.moon_distance, input.plan.constraints.moon.min_distance]),
		"severity": "error",
	}
}
`,
	}
}

// airmassPolicy rejects plans whose target airmass is too high.
func airmassPolicy() Policy {
	return Policy{
		Name:        "airmass-constraint",
		Description: "Rejects plans when the target airmass exceeds the plan's limit",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"constraints", "airmass"},
		Rego: `package specfleet.constraints.airmass

import rego.v1

deny contains violation if {
	input.plan.constraints.airmass
	input.conditions.airmass > input.plan.constraints.airmass.max
	violation := {
		"message": sprintf("airmass %.2f exceeds max %.2f", [input.conditions.airmass, input.plan.constraints.airmass.max]),
		"severity": "error",
	}
}
`,
	}
}

// seeingPolicy rejects plans when the seeing is worse than requested.
func seeingPolicy() Policy {
	return Policy{
		Name:        "seeing-constraint",
		Description: "Rejects plans when the measured seeing exceeds the plan's limit",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"constraints", "seeing"},
		Rego: `package specfleet.constraints.seeing

import rego.v1

deny contains violation if {
	input.plan.constraints.seeing
	input.conditions.seeing > input.plan.constraints.seeing.max
	violation := {
		"message": sprintf("seeing %.2f arcsec exceeds max %.2f arcsec", [input.conditions.seeing, input.plan.constraints.seeing.max]),
		"severity": "error",
	}
}
`,
	}
}
