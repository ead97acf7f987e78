// Package engine orchestrates plan executions across the fleet. For
// each plan it resolves the unit specifiers into endpoints, probes the
// peers, dispatches assignments, waits for the committed units to reach
// guiding, starts the spectrograph exposure and waits for it to finish.
// A plan terminates exactly once, as completed, failed or rejected, and
// its record is archived accordingly.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/specfleet/specfleet/pkg/config"
	"github.com/specfleet/specfleet/pkg/plan"
	"github.com/specfleet/specfleet/pkg/policy"
	"github.com/specfleet/specfleet/pkg/stores"
	"github.com/specfleet/specfleet/pkg/telemetry"
)

// ConditionsProvider supplies the current observing conditions for
// constraint evaluation.
type ConditionsProvider interface {
	Conditions(ctx context.Context) (policy.Conditions, error)
}

// Engine runs plan executions. Construct with New; the optional
// collaborators are attached with the With methods.
type Engine struct {
	cfg    *config.Config
	plans  *plan.Store
	logger zerolog.Logger
	arena  *Arena

	gate       *policy.Gate
	history    *stores.HistoryStore
	metrics    *telemetry.Metrics
	publisher  *telemetry.Publisher
	tracer     *telemetry.Tracer
	conditions ConditionsProvider
}

// New creates an engine over the given configuration and plan store.
func New(cfg *config.Config, plans *plan.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		plans:  plans,
		logger: logger.With().Str("component", "engine").Logger(),
		arena:  NewArena(),
	}
}

// WithGate attaches the constraint gate.
func (e *Engine) WithGate(g *policy.Gate) *Engine {
	e.gate = g
	return e
}

// WithHistory attaches the execution history archive.
func (e *Engine) WithHistory(h *stores.HistoryStore) *Engine {
	e.history = h
	return e
}

// WithMetrics attaches the metrics registry.
func (e *Engine) WithMetrics(m *telemetry.Metrics) *Engine {
	e.metrics = m
	return e
}

// WithPublisher attaches the notification publisher.
func (e *Engine) WithPublisher(p *telemetry.Publisher) *Engine {
	e.publisher = p
	return e
}

// WithTracer attaches the tracer.
func (e *Engine) WithTracer(t *telemetry.Tracer) *Engine {
	e.tracer = t
	return e
}

// WithConditions attaches the observing conditions provider. Without
// one the constraint gate is skipped.
func (e *Engine) WithConditions(p ConditionsProvider) *Engine {
	e.conditions = p
	return e
}

// Arena returns the in-flight executions.
func (e *Engine) Arena() *Arena {
	return e.arena
}

// Submit loads a plan file, resolves its fleet and starts executing it
// in the background. The returned id identifies the execution in the
// arena. A plan already in flight is refused with a conflict.
func (e *Engine) Submit(ctx context.Context, path string) (string, error) {
	rec, err := e.plans.Load(path)
	if err != nil {
		return "", NewTransientError("cannot load plan", err)
	}

	fleet, err := e.ResolveFleet(rec)
	if err != nil {
		return "", err
	}

	x, err := e.launch(ctx, rec, fleet)
	if err != nil {
		return "", err
	}

	if e.publisher != nil {
		_ = e.publisher.PublishPlanSubmitted(rec.Task.ID, nil)
	}

	go func() {
		_ = e.Execute(x)
	}()
	return rec.Task.ID, nil
}

// Abort cancels an in-flight execution. The run loop aborts the
// committed peers and terminates the plan as failed.
func (e *Engine) Abort(planID string) error {
	x, ok := e.arena.Get(planID)
	if !ok {
		return NewPermanentError("plan is not executing", nil)
	}
	e.logger.Info().Str("plan_id", planID).Msg("Abort requested")
	x.Cancel()
	return nil
}

// checkConstraints runs the gate against the plan under the current
// conditions. Returns the violation details when the plan is blocked.
func (e *Engine) checkConstraints(ctx context.Context, rec *plan.Record) ([]string, error) {
	if e.gate == nil || e.conditions == nil {
		return nil, nil
	}

	cond, err := e.conditions.Conditions(ctx)
	if err != nil {
		// Unknown conditions never strand a plan.
		e.logger.Warn().Err(err).Str("plan_id", rec.Task.ID).Msg("Observing conditions unavailable")
		return nil, nil
	}

	result, err := e.gate.EvaluatePlan(ctx, rec, cond)
	if err != nil {
		return nil, err
	}
	if result.Allowed {
		return nil, nil
	}
	return result.Details(), nil
}
