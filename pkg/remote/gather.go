package remote

import (
	"context"
	"sync"

	"github.com/specfleet/specfleet/pkg/canonical"
)

// StatusResult is one peer's outcome within a gathered status batch.
// Status is nil when the call failed or returned an undecodable value;
// Response always carries the reason.
type StatusResult struct {
	Endpoint *Endpoint
	Status   *Status
	Response canonical.Response
}

// GatherStatuses fetches the status of every endpoint concurrently and
// returns the results in input order. A failure of one call is captured in
// its slot and never aborts or delays collection of the others; the batch
// completes when every call has resolved.
func GatherStatuses(ctx context.Context, endpoints []*Endpoint) []StatusResult {
	results := make([]StatusResult, len(endpoints))

	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep *Endpoint) {
			defer wg.Done()
			status, cr := ep.FetchStatus(ctx)
			results[i] = StatusResult{Endpoint: ep, Status: status, Response: cr}
		}(i, ep)
	}
	wg.Wait()

	return results
}

// CallResult is one peer's outcome within a gathered call batch.
type CallResult struct {
	Endpoint *Endpoint
	Response canonical.Response
}

// GatherCalls runs one call per endpoint concurrently and returns the
// results in input order, with per-call failures captured as data.
func GatherCalls(ctx context.Context, endpoints []*Endpoint, call func(context.Context, *Endpoint) canonical.Response) []CallResult {
	results := make([]CallResult, len(endpoints))

	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep *Endpoint) {
			defer wg.Done()
			results[i] = CallResult{Endpoint: ep, Response: call(ctx, ep)}
		}(i, ep)
	}
	wg.Wait()

	return results
}
