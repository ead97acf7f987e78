package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/specfleet/specfleet/pkg/activity"
	"github.com/specfleet/specfleet/pkg/plan"
)

// Execution is the in-flight handle of one plan run. It lives in the
// arena from submission until termination.
type Execution struct {
	PlanID     string
	Record     *plan.Record
	Fleet      *Fleet
	Activities *activity.Set
	StartedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Cancel asks the execution to stop. The run loop aborts the committed
// peers and terminates the plan as failed.
func (x *Execution) Cancel() {
	if x.cancel != nil {
		x.cancel()
	}
}

// Arena holds the in-flight executions, keyed by plan id. A plan id can
// be in flight at most once; resubmitting an executing plan is refused.
type Arena struct {
	mu         sync.Mutex
	executions map[string]*Execution
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{executions: make(map[string]*Execution)}
}

// Add registers an execution. A duplicate plan id yields a conflict.
func (a *Arena) Add(x *Execution) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.executions[x.PlanID]; exists {
		return NewConflictError("plan is already executing", x.PlanID)
	}
	a.executions[x.PlanID] = x
	return nil
}

// Remove drops an execution. Removing an unknown id is a no-op.
func (a *Arena) Remove(planID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.executions, planID)
}

// Get returns the execution for the plan id, if in flight.
func (a *Arena) Get(planID string) (*Execution, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	x, ok := a.executions[planID]
	return x, ok
}

// List returns the in-flight executions ordered by plan id. Ids are
// time-sortable, so this is submission order.
func (a *Arena) List() []*Execution {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Execution, 0, len(a.executions))
	for _, x := range a.executions {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanID < out[j].PlanID })
	return out
}

// Len returns the number of in-flight executions.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.executions)
}
