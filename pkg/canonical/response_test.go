package canonical

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestOk(t *testing.T) {
	r := Ok("ready")

	if !r.Succeeded() {
		t.Error("Expected Ok response to succeed")
	}
	if r.Failed() {
		t.Error("Expected Ok response not to fail")
	}
	if r.Failure() != nil {
		t.Errorf("Expected nil failure, got %v", r.Failure())
	}
}

func TestOk_NilValue(t *testing.T) {
	r := Ok(nil)

	if !r.Succeeded() {
		t.Error("Expected nil-value response to count as success")
	}
}

func TestFromErrors(t *testing.T) {
	r := FromErrors("unit busy", "mount parked")

	if r.Succeeded() {
		t.Error("Expected error response not to succeed")
	}
	if r.IsException() {
		t.Error("Expected error response not to be an exception")
	}
	if len(r.Failure()) != 2 {
		t.Errorf("Expected 2 failure messages, got %d", len(r.Failure()))
	}
}

func TestFromError(t *testing.T) {
	r := FromError(errors.New("connection refused"))

	if r.Succeeded() {
		t.Error("Expected failure")
	}
	if r.Failure()[0] != "connection refused" {
		t.Errorf("Unexpected failure message: %s", r.Failure()[0])
	}
}

func TestFromException(t *testing.T) {
	r := FromException(&RemoteException{Type: "ValueError", Message: "bad coordinates"})

	if !r.IsException() {
		t.Error("Expected exception response")
	}
	if r.Succeeded() {
		t.Error("Expected exception response not to succeed")
	}
	if got := r.Failure()[0]; got != "ValueError: bad coordinates" {
		t.Errorf("Unexpected failure string: %s", got)
	}
}

func TestResponse_ExactlyOnePopulated(t *testing.T) {
	cases := []struct {
		name string
		r    Response
	}{
		{"ok", Ok(map[string]any{"operational": true})},
		{"errors", FromErrors("rejected")},
		{"exception", FromException(&RemoteException{Type: "RuntimeError", Message: "x"})},
	}

	for _, tc := range cases {
		populated := 0
		if tc.r.Value != nil {
			populated++
		}
		if len(tc.r.Errors) > 0 {
			populated++
		}
		if tc.r.Exception != nil {
			populated++
		}
		if populated > 1 {
			t.Errorf("%s: more than one field populated", tc.name)
		}
	}
}

func TestResponse_RoundTripKeepsEnvelope(t *testing.T) {
	raw, err := json.Marshal(FromErrors("no quorum"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if r.APIVersion != APIVersion {
		t.Errorf("Expected api_version %q, got %q", APIVersion, r.APIVersion)
	}
	if r.Succeeded() {
		t.Error("Expected failure to survive round trip")
	}
}
