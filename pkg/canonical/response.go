// Package canonical defines the uniform response envelope every remote call
// in the fleet is normalized into. A response carries exactly one of a value,
// a list of business-rule errors, or a serialized remote exception, so callers
// can distinguish transport failure, remote rejection and success without
// inspecting HTTP details.
package canonical

import (
	"fmt"

	"github.com/rs/zerolog"
)

// APIVersion marks a payload as a canonical response envelope.
const APIVersion = "1.0"

// RemoteException is a failure serialized by the remote side: its type,
// message, arguments and stack trace, carried verbatim for diagnostics.
type RemoteException struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Args    []string `json:"args,omitempty"`
	Trace   string   `json:"traceback,omitempty"`
}

func (e *RemoteException) String() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Response is the canonical result of a remote call. At most one of Value,
// Errors and Exception is populated; the constructors below are the only
// intended way to build one.
type Response struct {
	APIVersion string           `json:"api_version"`
	Value      any              `json:"value,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
	Exception  *RemoteException `json:"exception,omitempty"`
}

// Ok wraps a success payload. A nil value is a legal success.
func Ok(value any) Response {
	return Response{APIVersion: APIVersion, Value: value}
}

// FromErrors wraps one or more business-rule failure messages.
func FromErrors(errs ...string) Response {
	return Response{APIVersion: APIVersion, Errors: errs}
}

// FromError wraps a local Go error as a single-entry error response.
func FromError(err error) Response {
	return Response{APIVersion: APIVersion, Errors: []string{err.Error()}}
}

// FromException wraps a remote exception.
func FromException(exc *RemoteException) Response {
	return Response{APIVersion: APIVersion, Exception: exc}
}

// Succeeded reports whether the call completed without errors or exception.
func (r Response) Succeeded() bool {
	return r.Exception == nil && len(r.Errors) == 0
}

// Failed reports whether the remote side signaled errors or an exception.
func (r Response) Failed() bool {
	return !r.Succeeded()
}

// IsException reports whether the failure is a serialized remote exception.
func (r Response) IsException() bool {
	return r.Exception != nil
}

// Failure returns the human-readable failure messages, or nil on success.
func (r Response) Failure() []string {
	if r.Exception != nil {
		return []string{r.Exception.String()}
	}
	if len(r.Errors) > 0 {
		return r.Errors
	}
	return nil
}

// Log writes the failure, if any, to the given logger under the label.
// Successful responses are not logged.
func (r Response) Log(logger zerolog.Logger, label string) {
	if label == "" {
		label = "canonical"
	}
	switch {
	case r.IsException():
		logger.Error().
			Str("label", label).
			Str("type", r.Exception.Type).
			Str("message", r.Exception.Message).
			Msg("remote exception")
	case r.Failed():
		logger.Error().
			Str("label", label).
			Strs("errors", r.Errors).
			Msg("remote errors")
	}
}
