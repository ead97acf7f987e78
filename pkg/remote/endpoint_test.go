package remote

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/specfleet/specfleet/pkg/activity"
	"github.com/specfleet/specfleet/pkg/canonical"
)

// newTestEndpoint points an endpoint at an httptest server.
func newTestEndpoint(t *testing.T, serverURL string) *Endpoint {
	t.Helper()

	host, portStr, err := net.SplitHostPort(serverURL[len("http://"):])
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	ep, err := NewEndpoint(Config{IPAddr: host, Port: port}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new endpoint: %v", err)
	}
	return ep
}

func statusHandler(status Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(canonical.Ok(status))
	}
}

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(statusHandler(Status{
		Operational: true,
		Activities:  activity.UnitGuiding,
	}))
	defer srv.Close()

	ep := newTestEndpoint(t, srv.URL)
	status, cr := ep.FetchStatus(context.Background())

	if cr.Failed() {
		t.Fatalf("Expected success, got %v", cr.Failure())
	}
	if status == nil || !status.Operational {
		t.Fatal("Expected an operational status")
	}
	if !status.Activities.Has(activity.UnitGuiding) {
		t.Error("Expected Guiding bit set")
	}
	if !ep.Detected() {
		t.Error("Expected endpoint to be detected after a round trip")
	}
	if !ep.Operational() {
		t.Error("Expected endpoint to be operational")
	}
}

func TestFetchStatus_NotOperational(t *testing.T) {
	srv := httptest.NewServer(statusHandler(Status{
		Operational:       false,
		WhyNotOperational: []string{"mount parked"},
	}))
	defer srv.Close()

	ep := newTestEndpoint(t, srv.URL)
	status, cr := ep.FetchStatus(context.Background())

	if cr.Failed() {
		t.Fatalf("Expected transport success, got %v", cr.Failure())
	}
	if status.Operational {
		t.Error("Expected non-operational status")
	}
	if !ep.Detected() {
		t.Error("Expected detected: the call round-tripped")
	}
	if ep.Operational() {
		t.Error("Expected operational=false on the handle")
	}
}

func TestGet_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens anymore

	ep := newTestEndpoint(t, url)
	cr := ep.Get(context.Background(), "status", nil)

	if cr.Succeeded() {
		t.Fatal("Expected failure against a closed server")
	}
	if ep.Detected() {
		t.Error("Expected undetected after transport failure")
	}
}

func TestGet_HTTPErrorStillDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ep := newTestEndpoint(t, srv.URL)
	cr := ep.Get(context.Background(), "status", nil)

	if cr.Succeeded() {
		t.Fatal("Expected an error response for HTTP 500")
	}
	if !ep.Detected() {
		t.Error("Expected detected: the peer answered, even if with an error")
	}
}

func TestDo_RemoteErrorsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(canonical.FromErrors("assignment rejected: already busy"))
	}))
	defer srv.Close()

	ep := newTestEndpoint(t, srv.URL)
	cr := ep.ExecuteAssignment(context.Background(), map[string]any{"ra": 1.23})

	if cr.Succeeded() {
		t.Fatal("Expected remote rejection to surface as failure")
	}
	if cr.IsException() {
		t.Error("Expected errors, not an exception")
	}
	if cr.Failure()[0] != "assignment rejected: already busy" {
		t.Errorf("Unexpected failure: %v", cr.Failure())
	}
}

func TestDo_NonCanonicalWrappedAsValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"uptime": 42})
	}))
	defer srv.Close()

	ep := newTestEndpoint(t, srv.URL)
	cr := ep.Get(context.Background(), "status", nil)

	if cr.Failed() {
		t.Fatalf("Expected wrapped success, got %v", cr.Failure())
	}
	value, ok := cr.Value.(map[string]any)
	if !ok || value["uptime"] != float64(42) {
		t.Errorf("Unexpected wrapped value: %#v", cr.Value)
	}
}

func TestExecuteAssignment_SendsJSONBody(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(canonical.Ok("ok"))
	}))
	defer srv.Close()

	ep := newTestEndpoint(t, srv.URL)
	cr := ep.ExecuteAssignment(context.Background(), map[string]any{"ra": 12.5, "dec": -30.0})

	if cr.Failed() {
		t.Fatalf("Expected success, got %v", cr.Failure())
	}
	if received["ra"] != 12.5 || received["dec"] != -30.0 {
		t.Errorf("Body not delivered intact: %#v", received)
	}
}

func TestGatherStatuses_FailureIsolation(t *testing.T) {
	up1 := httptest.NewServer(statusHandler(Status{Operational: true}))
	defer up1.Close()
	up2 := httptest.NewServer(statusHandler(Status{Operational: true}))
	defer up2.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	endpoints := []*Endpoint{
		newTestEndpoint(t, up1.URL),
		newTestEndpoint(t, downURL),
		newTestEndpoint(t, up2.URL),
	}

	results := GatherStatuses(context.Background(), endpoints)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Status == nil || results[2].Status == nil {
		t.Error("Expected healthy peers to resolve despite the dead one")
	}
	if results[1].Status != nil || results[1].Response.Succeeded() {
		t.Error("Expected the dead peer's slot to carry its failure")
	}
	if results[1].Endpoint.Detected() {
		t.Error("Expected the dead peer to stay undetected")
	}
}

func TestGatherCalls_OrderPreserved(t *testing.T) {
	var srvs []*httptest.Server
	var endpoints []*Endpoint
	for i := 0; i < 4; i++ {
		name := "unit" + strconv.Itoa(i)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(canonical.Ok(name))
		}))
		srvs = append(srvs, srv)
		endpoints = append(endpoints, newTestEndpoint(t, srv.URL))
	}
	defer func() {
		for _, s := range srvs {
			s.Close()
		}
	}()

	results := GatherCalls(context.Background(), endpoints, func(ctx context.Context, ep *Endpoint) canonical.Response {
		return ep.Get(ctx, "abort", nil)
	})

	for i, res := range results {
		want := "unit" + strconv.Itoa(i)
		if res.Response.Value != want {
			t.Errorf("Slot %d: expected %q, got %#v", i, want, res.Response.Value)
		}
	}
}
