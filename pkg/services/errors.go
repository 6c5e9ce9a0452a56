// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrStepsRequired        = errors.New("workflow must have at least one active step")
	ErrInvalidStatus        = errors.New("invalid workflow status")
	ErrInvalidTrigger       = errors.New("invalid trigger configuration")
	ErrInvalidStep          = errors.New("invalid step configuration")
	ErrInvalidBranchTarget  = errors.New("branch target must reference a step in the same workflow")
	ErrUnknownEvent         = errors.New("unknown event type")
	ErrUnknownDeliveryEvent = errors.New("unknown delivery event")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowNotActive   = errors.New("workflow is not active")
	ErrExecutionTerminal   = errors.New("execution already finished")
	ErrExecutionNotWaiting = errors.New("execution is not waiting for an event")
	ErrEventNameMismatch   = errors.New("event name does not match the wait step")
	ErrWorkflowNotManual   = errors.New("workflow is not manually triggered")
	ErrAlreadyEnrolled     = errors.New("lead already has a live enrollment")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrInvalidStep) ||
		errors.Is(err, ErrInvalidBranchTarget) ||
		errors.Is(err, ErrUnknownEvent) ||
		errors.Is(err, ErrUnknownDeliveryEvent)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowNotActive) ||
		errors.Is(err, ErrExecutionTerminal) ||
		errors.Is(err, ErrExecutionNotWaiting) ||
		errors.Is(err, ErrEventNameMismatch) ||
		errors.Is(err, ErrWorkflowNotManual) ||
		errors.Is(err, ErrAlreadyEnrolled)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
