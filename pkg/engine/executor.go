package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/specfleet/specfleet/pkg/activity"
	"github.com/specfleet/specfleet/pkg/canonical"
	"github.com/specfleet/specfleet/pkg/plan"
	"github.com/specfleet/specfleet/pkg/remote"
	"github.com/specfleet/specfleet/pkg/stores"
	"github.com/specfleet/specfleet/pkg/telemetry"
)

// Outcome is the terminal result of one plan execution.
type Outcome struct {
	Reason  stores.TerminationReason
	Details []string
}

func rejected(details ...string) *Outcome {
	return &Outcome{Reason: stores.ReasonRejected, Details: details}
}

func failed(details ...string) *Outcome {
	return &Outcome{Reason: stores.ReasonFailed, Details: details}
}

// run is the per-execution state threaded through the phases.
type run struct {
	eng    *Engine
	x      *Execution
	rec    *plan.Record
	fleet  *Fleet
	acts   *activity.Set
	logger zerolog.Logger

	// operational is the probing survivor set, committed the units that
	// accepted the assignment.
	operational []*FleetUnit
	committed   []*FleetUnit
}

// launch registers a new execution in the arena. The execution context
// is detached from the caller's so a request timeout cannot kill a run.
func (e *Engine) launch(ctx context.Context, rec *plan.Record, fleet *Fleet) (*Execution, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	acts := activity.New("plan "+rec.Task.ID, activity.AssignmentFlagNames, e.logger)
	if e.publisher != nil {
		acts.WithNotifier(e.publisher)
	}

	x := &Execution{
		PlanID:     rec.Task.ID,
		Record:     rec,
		Fleet:      fleet,
		Activities: acts,
		StartedAt:  time.Now().UTC(),
		ctx:        runCtx,
		cancel:     cancel,
	}
	if err := e.arena.Add(x); err != nil {
		cancel()
		return nil, err
	}
	return x, nil
}

// ExecuteRecord runs a plan synchronously against an already resolved
// fleet and returns its outcome.
func (e *Engine) ExecuteRecord(ctx context.Context, rec *plan.Record, fleet *Fleet) (*Outcome, error) {
	x, err := e.launch(ctx, rec, fleet)
	if err != nil {
		return nil, err
	}
	return e.Execute(x), nil
}

// Execute drives a launched execution to termination.
func (e *Engine) Execute(x *Execution) *Outcome {
	defer e.arena.Remove(x.PlanID)
	defer x.cancel()

	r := &run{
		eng:    e,
		x:      x,
		rec:    x.Record,
		fleet:  x.Fleet,
		acts:   x.Activities,
		logger: e.logger.With().Str("plan_id", x.PlanID).Logger(),
	}

	ctx := x.ctx
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartPlanSpan(ctx, x.PlanID)
		defer span.End()
	}

	r.acts.Start(activity.AssignmentExecuting)
	if e.metrics != nil {
		e.metrics.RecordPlanStarted()
	}
	if err := e.plans.AppendEvent(r.rec, "run", nil); err != nil {
		r.logger.Warn().Err(err).Msg("Cannot persist run event")
	}
	r.logger.Info().
		Int("units", len(r.fleet.Units)).
		Int("quorum", r.rec.Task.Quorum).
		Bool("debug", e.cfg.Debug()).
		Msg("Plan execution started")

	outcome := r.execute(ctx)
	r.terminate(outcome)
	return outcome
}

// execute runs the phases in order. A panic inside a phase aborts the
// committed peers and fails the plan instead of taking the service down.
func (r *run) execute(ctx context.Context) (out *Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("Execution panicked")
			r.abortPeers(ctx)
			out = failed(fmt.Sprintf("internal error: %v", p))
		}
	}()

	if details, err := r.eng.checkConstraints(ctx, r.rec); err != nil {
		r.logger.Warn().Err(err).Msg("Constraint evaluation failed, continuing")
	} else if len(details) > 0 {
		return rejected(details...)
	}

	phases := []struct {
		flag activity.Flag
		name string
		fn   func(context.Context) *Outcome
	}{
		{activity.AssignmentProbing, "probing", r.probe},
		{activity.AssignmentDispatching, "dispatching", r.dispatch},
		{activity.AssignmentWaitingForGuiding, "waiting_for_guiding", r.waitForGuiding},
		{activity.AssignmentExposingSpec, "exposing_spec", r.exposeSpec},
		{activity.AssignmentWaitingForSpecDone, "waiting_for_spec_done", r.waitForSpecDone},
	}

	for _, ph := range phases {
		if ctx.Err() != nil {
			r.abortPeers(ctx)
			return failed("aborted")
		}
		if out := r.phase(ctx, ph.flag, ph.name, ph.fn); out != nil {
			return out
		}
	}
	return &Outcome{Reason: stores.ReasonCompleted}
}

// phase wraps one phase with its activity flag, span and duration metric.
func (r *run) phase(ctx context.Context, flag activity.Flag, name string, fn func(context.Context) *Outcome) *Outcome {
	r.acts.Start(flag)
	timer := telemetry.NewTimer()

	var out *Outcome
	if r.eng.tracer != nil {
		spanCtx, span := r.eng.tracer.StartPhaseSpan(ctx, r.rec.Task.ID, name)
		out = fn(spanCtx)
		if out != nil {
			telemetry.RecordError(span, errors.New(strings.Join(out.Details, "; ")))
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	} else {
		out = fn(ctx)
	}

	r.acts.End(flag)
	if r.eng.metrics != nil {
		r.eng.metrics.RecordPhase(name, timer.Duration())
	}
	return out
}

// probe gathers the status of every unit and the spectrograph in one
// batch and decides which peers the plan can proceed with. Detection
// (a call round-tripped at all) is enforced unconditionally; only the
// operational partition is relaxed in debug mode, where unhealthy
// peers are kept with a logged note.
func (r *run) probe(ctx context.Context) *Outcome {
	production := r.rec.Task.Production && !r.eng.cfg.Debug()
	quorum := r.rec.Task.Quorum

	endpoints := append(r.fleet.Endpoints(), r.fleet.Spec)
	results := remote.GatherStatuses(ctx, endpoints)
	unitResults, specResult := results[:len(r.fleet.Units)], results[len(results)-1]

	var detected []*FleetUnit
	var detectedNames []string
	for i, res := range unitResults {
		unit := r.fleet.Units[i]
		if !res.Endpoint.Detected() {
			r.logger.Warn().
				Str("unit", unit.Ref.String()).
				Strs("errors", res.Response.Failure()).
				Msg("Unit not detected")
			continue
		}
		detected = append(detected, unit)
		detectedNames = append(detectedNames, unit.Ref.String())
	}

	if len(detected) == 0 {
		return rejected(fmt.Sprintf("no units quorum, no units were detected (required: %d)", quorum))
	}
	if len(detected) < quorum {
		return rejected(fmt.Sprintf("no units quorum, detected only %d (%v), required %d",
			len(detected), detectedNames, quorum))
	}

	if !r.fleet.Spec.Detected() {
		return rejected("spec not detected")
	}

	for i, res := range unitResults {
		unit := r.fleet.Units[i]
		if res.Status == nil {
			continue
		}
		if !res.Status.Operational {
			if production {
				r.logger.Warn().
					Str("unit", unit.Ref.String()).
					Strs("why", res.Status.WhyNotOperational).
					Msg("Dropping non-operational unit")
				continue
			}
			r.logger.Warn().
				Str("unit", unit.Ref.String()).
				Strs("why", res.Status.WhyNotOperational).
				Msg("Keeping non-operational unit (debug)")
		}
		r.operational = append(r.operational, unit)
	}

	if r.eng.metrics != nil {
		r.eng.metrics.SetFleetCounts(len(detected), len(r.operational))
		if specResult.Status != nil {
			r.eng.metrics.SetSpecOperational(specResult.Status.Operational)
		}
	}

	if len(r.operational) == 0 {
		return rejected(fmt.Sprintf("no operational units (quorum: %d)", quorum))
	}
	if production && len(r.operational) < quorum {
		return rejected(fmt.Sprintf("only %d operational units (quorum: %d)", len(r.operational), quorum))
	}

	// The spec answered at the transport level; a failed envelope is
	// still a business-level refusal and rejects in any mode.
	if specResult.Status == nil {
		return rejected(fmt.Sprintf("cannot talk to spec '%s' (errors: %v)",
			r.fleet.Spec.Name(), specResult.Response.Failure()))
	}
	if !specResult.Status.Operational {
		if production {
			return rejected(fmt.Sprintf("spec is not operational %v", specResult.Status.WhyNotOperational))
		}
		r.logger.Warn().
			Strs("why", specResult.Status.WhyNotOperational).
			Msg("Continuing with non-operational spec (debug)")
	}
	return nil
}

// dispatch sends each operational unit its assignment concurrently and
// keeps the units that accepted. An empty committed set rejects in any
// mode; the quorum itself binds only in production.
func (r *run) dispatch(ctx context.Context) *Outcome {
	production := r.rec.Task.Production && !r.eng.cfg.Debug()
	quorum := r.rec.Task.Quorum

	byEndpoint := make(map[*remote.Endpoint]*FleetUnit, len(r.operational))
	endpoints := make([]*remote.Endpoint, len(r.operational))
	for i, unit := range r.operational {
		byEndpoint[unit.Endpoint] = unit
		endpoints[i] = unit.Endpoint
	}

	results := remote.GatherCalls(ctx, endpoints, func(ctx context.Context, ep *remote.Endpoint) canonical.Response {
		return ep.ExecuteAssignment(ctx, byEndpoint[ep].Assignment)
	})

	var committedNames []string
	for i, res := range results {
		unit := r.operational[i]
		if res.Response.Failed() {
			r.logger.Warn().
				Str("unit", unit.Ref.String()).
				Strs("errors", res.Response.Failure()).
				Msg("Unit did not commit")
			if r.eng.metrics != nil {
				r.eng.metrics.RecordRemoteError(unit.Endpoint.Name(), "execute_assignment")
			}
			continue
		}
		r.committed = append(r.committed, unit)
		committedNames = append(committedNames, unit.Ref.String())
	}

	if len(r.committed) == 0 {
		return rejected(fmt.Sprintf("no committed units (quorum: %d)", quorum))
	}
	if len(r.committed) < quorum {
		if production {
			return rejected(fmt.Sprintf("only %d units (quorum: %d)", len(r.committed), quorum))
		}
		r.logger.Info().
			Int("committed", len(r.committed)).
			Int("quorum", quorum).
			Msg("Continuing below the committed quorum (debug)")
	}

	if err := r.eng.plans.AppendEvent(r.rec, "submitted",
		[]string{fmt.Sprintf("committed_units: %v", committedNames)}); err != nil {
		r.logger.Warn().Err(err).Msg("Cannot persist submitted event")
	}
	return nil
}

// waitForGuiding polls the committed units until all of them report the
// guiding activity, bounded by the plan's timeout_to_guiding.
func (r *run) waitForGuiding(ctx context.Context) *Outcome {
	deadline := time.NewTimer(r.rec.GuidingTimeout())
	defer deadline.Stop()
	ticker := time.NewTicker(r.eng.cfg.Engine.PollInterval)
	defer ticker.Stop()

	for {
		if r.allGuiding(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			r.abortPeers(ctx)
			return failed("aborted")
		case <-deadline.C:
			r.abortPeers(ctx)
			return failed(fmt.Sprintf("did not reach 'guiding' within %d seconds", r.rec.Task.TimeoutToGuiding))
		case <-ticker.C:
		}
	}
}

// allGuiding reports whether every committed unit has the guiding bit set.
func (r *run) allGuiding(ctx context.Context) bool {
	endpoints := make([]*remote.Endpoint, len(r.committed))
	for i, unit := range r.committed {
		endpoints[i] = unit.Endpoint
	}

	results := remote.GatherStatuses(ctx, endpoints)
	for i, res := range results {
		if res.Status == nil {
			r.logger.Debug().
				Str("unit", r.committed[i].Ref.String()).
				Strs("errors", res.Response.Failure()).
				Msg("No status while waiting for guiding")
			return false
		}
		if !res.Status.Activities.Has(activity.UnitGuiding) {
			return false
		}
	}
	return true
}

// exposeSpec verifies the spectrograph one more time and starts the
// exposure. The spectrograph must be idle in any mode and operational
// in production; any failure here aborts the guiding units.
func (r *run) exposeSpec(ctx context.Context) *Outcome {
	production := r.rec.Task.Production && !r.eng.cfg.Debug()

	status, resp := r.fleet.Spec.FetchStatus(ctx)
	if status == nil {
		r.abortPeers(ctx)
		return failed(fmt.Sprintf("cannot talk to spec '%s' (errors: %v)",
			r.fleet.Spec.Name(), resp.Failure()))
	}
	if production && !status.Operational {
		r.abortPeers(ctx)
		return failed(fmt.Sprintf("spec is not operational %v", status.WhyNotOperational))
	}
	if !status.IsIdle() {
		r.abortPeers(ctx)
		return failed(fmt.Sprintf("spec is busy (activities: %s)",
			status.Activities.Verbal(activity.SpecFlagNames)))
	}

	cr := r.fleet.Spec.ExecuteAssignment(ctx, r.fleet.SpecAssignment)
	if cr.Failed() {
		if r.eng.metrics != nil {
			r.eng.metrics.RecordRemoteError(r.fleet.Spec.Name(), "execute_assignment")
		}
		r.abortPeers(ctx)
		return failed(fmt.Sprintf("spec did not accept the assignment (errors: %v)", cr.Failure()))
	}
	return nil
}

// waitForSpecDone polls the spectrograph until it reports idle again.
// A non-operational signal fails the run in production; debug logs it
// and keeps polling. The wait is bounded by the configured timeout;
// zero waits forever.
func (r *run) waitForSpecDone(ctx context.Context) *Outcome {
	production := r.rec.Task.Production && !r.eng.cfg.Debug()
	timeout := r.eng.cfg.Engine.SpecDoneTimeout

	var expired <-chan time.Time
	if timeout > 0 {
		deadline := time.NewTimer(timeout)
		defer deadline.Stop()
		expired = deadline.C
	}
	ticker := time.NewTicker(r.eng.cfg.Engine.PollInterval)
	defer ticker.Stop()

	for {
		status, resp := r.fleet.Spec.FetchStatus(ctx)
		if status == nil {
			r.logger.Warn().
				Strs("errors", resp.Failure()).
				Msg("No spec status while waiting for exposure")
		} else {
			if !status.Operational {
				if production {
					r.abortPeers(ctx)
					return failed(fmt.Sprintf("spec is not operational %v", status.WhyNotOperational))
				}
				r.logger.Warn().
					Strs("why", status.WhyNotOperational).
					Msg("Polling a non-operational spec (debug)")
			}
			if status.IsIdle() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			r.abortPeers(ctx)
			return failed("aborted")
		case <-expired:
			r.abortPeers(ctx)
			return failed(fmt.Sprintf("spec did not finish within %s", timeout))
		case <-ticker.C:
		}
	}
}

// abortPeers tells every committed unit and the spectrograph to abandon
// the assignment. Best effort: failures are logged, never propagated.
// The calls run on a detached context so cancellation cannot stop them.
func (r *run) abortPeers(ctx context.Context) {
	peers := r.committed
	if peers == nil {
		peers = r.operational
	}

	endpoints := make([]*remote.Endpoint, 0, len(peers)+1)
	for _, unit := range peers {
		endpoints = append(endpoints, unit.Endpoint)
	}
	endpoints = append(endpoints, r.fleet.Spec)

	r.acts.Start(activity.AssignmentAborting)
	defer r.acts.End(activity.AssignmentAborting)

	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remote.DefaultTimeout)
	defer cancel()

	results := remote.GatherCalls(abortCtx, endpoints, func(ctx context.Context, ep *remote.Endpoint) canonical.Response {
		return ep.Abort(ctx)
	})
	for _, res := range results {
		if res.Response.Failed() {
			r.logger.Warn().
				Str("peer", res.Endpoint.Name()).
				Strs("errors", res.Response.Failure()).
				Msg("Abort call failed")
		}
	}
}

// terminate archives the record into its terminal area and fans the
// outcome out to the history archive, metrics and notifications.
func (r *run) terminate(out *Outcome) {
	terminatedAt := time.Now().UTC()
	duration := terminatedAt.Sub(r.x.StartedAt)

	details := append([]string{fmt.Sprintf("reason: %s", out.Reason)}, out.Details...)
	if err := r.eng.plans.AppendEvent(r.rec, "terminated", details); err != nil {
		r.logger.Warn().Err(err).Msg("Cannot persist terminated event")
	}

	area := plan.AreaFailed
	if out.Reason == stores.ReasonCompleted {
		area = plan.AreaCompleted
	}
	if err := r.eng.plans.Archive(r.rec, area); err != nil {
		r.logger.Error().Err(err).Str("area", area).Msg("Cannot archive plan record")
	}

	if r.eng.history != nil {
		if err := r.archive(out, terminatedAt); err != nil {
			r.logger.Error().Err(err).Msg("Cannot record execution history")
		}
	}
	if r.eng.metrics != nil {
		r.eng.metrics.RecordPlanTerminated(string(out.Reason), duration)
	}
	if r.eng.publisher != nil {
		_ = r.eng.publisher.PublishPlanTerminated(r.rec.Task.ID, string(out.Reason), out.Details)
	}

	r.acts.End(activity.AssignmentExecuting)
	r.logger.Info().
		Str("reason", string(out.Reason)).
		Strs("details", out.Details).
		Dur("duration", duration).
		Msg("Plan execution terminated")
}

// archive writes the terminated execution into the history store.
func (r *run) archive(out *Outcome, terminatedAt time.Time) error {
	instrument, _ := r.rec.Instrument()

	events := make([]stores.ExecutionEvent, 0, len(r.rec.Events))
	for _, ev := range r.rec.Events {
		at, err := time.Parse(time.RFC3339, ev.When)
		if err != nil {
			at = terminatedAt
		}
		events = append(events, stores.ExecutionEvent{
			What:    ev.What,
			Details: ev.Details,
			At:      at,
		})
	}

	exec := &stores.Execution{
		PlanID:       r.rec.Task.ID,
		Owner:        r.rec.Task.Owner,
		Instrument:   instrument,
		Quorum:       r.rec.Task.Quorum,
		Committed:    len(r.committed),
		Reason:       out.Reason,
		Details:      out.Details,
		RecordPath:   r.rec.Task.File,
		StartedAt:    r.x.StartedAt,
		TerminatedAt: terminatedAt,
		Events:       events,
	}
	if err := r.eng.history.RecordTermination(context.Background(), exec); err != nil {
		return NewTransientError("history archive failed", err)
	}
	return nil
}
