package models

import "time"

// WorkflowExecution is a single lead's run through a workflow. One row per
// (workflow, lead) enrollment; mutated only by the step executor while it
// holds the execution lease.
type WorkflowExecution struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id" validate:"required"`
	LeadID     string `json:"lead_id"     validate:"required"`

	Status ExecutionStatus `json:"status"`

	// CurrentStepID is nil once the execution is terminal.
	CurrentStepID *string `json:"current_step_id,omitempty"`

	// NextActionAt is nil when the execution is terminal or parked on an
	// event-based wait.
	NextActionAt *time.Time `json:"next_action_at,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Log []ExecutionLogEntry `json:"execution_log"`

	RetryCount   int    `json:"retry_count"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionLogEntry records one step outcome in execution order.
type ExecutionLogEntry struct {
	StepID    string    `json:"step_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// AppendLog adds an ordered log entry.
func (e *WorkflowExecution) AppendLog(stepID, status, details string) {
	e.Log = append(e.Log, ExecutionLogEntry{
		StepID:    stepID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Details:   details,
	})
}

// MarkCompleted transitions the execution to its successful terminal state.
func (e *WorkflowExecution) MarkCompleted() {
	now := time.Now().UTC()
	e.Status = ExecutionStatusCompleted
	e.CurrentStepID = nil
	e.NextActionAt = nil
	e.CompletedAt = &now
}

// MarkFailed transitions the execution to the failed terminal state.
func (e *WorkflowExecution) MarkFailed(message string) {
	now := time.Now().UTC()
	e.Status = ExecutionStatusFailed
	e.CurrentStepID = nil
	e.NextActionAt = nil
	e.CompletedAt = &now
	e.ErrorMessage = message
}

// MarkCancelled transitions the execution to the cancelled terminal state.
func (e *WorkflowExecution) MarkCancelled(reason string) {
	now := time.Now().UTC()
	e.Status = ExecutionStatusCancelled
	e.CurrentStepID = nil
	e.NextActionAt = nil
	e.CompletedAt = &now
	e.ErrorMessage = reason
}
