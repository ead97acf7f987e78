package engine

import (
	"fmt"
)

// ErrorClass classifies an engine error for callers that retry.
type ErrorClass string

const (
	// ErrorClassTransient marks a failure that may succeed on retry,
	// such as an IO error while loading a plan file.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict marks a state conflict, such as submitting a
	// plan that is already executing.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent marks a non-recoverable failure, such as a
	// plan naming units the site inventory does not have.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError is a classified error with the plan it concerns.
type EngineError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`

	// PlanID is the plan the error concerns, if known.
	PlanID string `json:"plan_id,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.PlanID != "" {
		msg += fmt.Sprintf(" (plan=%s)", e.PlanID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches engine errors by class.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewTransientError creates a transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConflictError creates a conflict error for the given plan.
func NewConflictError(message, planID string) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, PlanID: planID}
}

// NewPermanentError creates a permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPermanent, Message: message, Err: err}
}
