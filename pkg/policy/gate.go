package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/specfleet/specfleet/pkg/plan"
)

// Gate evaluates observing constraint policies against plans.
type Gate struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy is a policy whose Rego has been parse-checked.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewGate creates a gate preloaded with the built-in policies.
func NewGate(logger zerolog.Logger) (*Gate, error) {
	g := &Gate{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "constraint-gate").Logger(),
	}

	builtin := BuiltinPolicies()
	for i := range builtin {
		if err := g.compileAndStore(&builtin[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtin[i].Name, err)
		}
	}

	g.logger.Info().Int("count", len(builtin)).Msg("Built-in constraint policies loaded")
	return g, nil
}

// EvaluatePlan runs every enabled policy against the plan under the
// given conditions. Evaluation errors become warnings, never blocks:
// an unevaluable policy must not strand a plan.
func (g *Gate) EvaluatePlan(ctx context.Context, rec *plan.Record, cond Conditions) (*Result, error) {
	start := time.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()

	in := input{
		Plan:       rec,
		Conditions: cond,
		Timestamp:  start,
	}

	var violations []Violation
	var warnings []string

	for _, cp := range g.policies {
		if !cp.policy.Enabled {
			continue
		}

		found, err := g.evaluatePolicy(ctx, cp, in)
		if err != nil {
			g.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("plan_id", rec.Task.ID).
				Msg("Constraint evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if violations[i].Severity == SeverityError {
			allowed = false
			break
		}
	}

	g.logger.Debug().
		Str("plan_id", rec.Task.ID).
		Bool("allowed", allowed).
		Int("violations", len(violations)).
		Dur("duration", time.Since(start)).
		Msg("Plan constraints evaluated")

	return &Result{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: start,
	}, nil
}

// evaluatePolicy queries one policy's deny set.
func (g *Gate) evaluatePolicy(ctx context.Context, cp *compiledPolicy, in input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(cp.policy.Rego))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(in),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// packageName extracts the package name from Rego code.
func packageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "specfleet.constraints"
}

// toViolation builds a Violation from a deny result.
func toViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}
	return violation
}

// compileAndStore parse-checks a policy and registers it.
func (g *Gate) compileAndStore(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	g.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		compiled: time.Now(),
	}

	g.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled")
	return nil
}

// AddPolicies registers additional policies, replacing same-named ones.
func (g *Gate) AddPolicies(policies []Policy) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range policies {
		if err := g.compileAndStore(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

// GetPolicy returns a policy by name.
func (g *Gate) GetPolicy(name string) (*Policy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cp, exists := g.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all registered policies.
func (g *Gate) ListPolicies() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()

	policies := make([]Policy, 0, len(g.policies))
	for _, cp := range g.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (g *Gate) EnablePolicy(name string) error {
	return g.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (g *Gate) DisablePolicy(name string) error {
	return g.setEnabled(name, false)
}

func (g *Gate) setEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cp, exists := g.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	g.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
