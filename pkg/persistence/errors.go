package persistence

import "errors"

// Standard persistence error types that all implementations return.
var (
	// ErrWorkflowNotFound indicates no workflow exists for the identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTemplateNotFound indicates no communication template exists for
	// the identifier.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrExecutionNotFound indicates no execution exists for the
	// identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrMessageLogNotFound indicates no message log row exists for the
	// identifier or provider message id.
	ErrMessageLogNotFound = errors.New("message log not found")
)

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsTemplateNotFound checks if an error indicates a missing template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsMessageLogNotFound checks if an error indicates a missing message log.
func IsMessageLogNotFound(err error) bool {
	return errors.Is(err, ErrMessageLogNotFound)
}
