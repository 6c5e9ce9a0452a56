// Package events defines the domain events the engine consumes and emits.
package events

import (
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine event on the bus.
const Topic = "leadflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Lead domain events, published by the CRM side.
	LeadCreatedEvent  EventType = "lead.created"
	LeadUpdatedEvent  EventType = "lead.updated"
	StageChangedEvent EventType = "stage.changed"
	FieldUpdateEvent  EventType = "field.update"
	UserActivityEvent EventType = "user.activity"

	// Engine events.
	ExecutionResumeEvent    EventType = "execution.resume"
	ExecutionEnrolledEvent  EventType = "execution.enrolled"
	ExecutionFinishedEvent  EventType = "execution.finished"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	LeadID    string         `json:"lead_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, leadID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		LeadID:    leadID,
	}
}

// LeadEvent is a CRM-side domain event: a lead was created, updated, moved
// to another stage, had a field changed, or showed activity. The payload
// carries the event-specific detail (changed fields, old/new stage, the
// activity name).
type LeadEvent struct {
	BaseEvent

	Payload map[string]any `json:"payload,omitempty"`
}

func (e LeadEvent) GetType() EventType {
	return e.Type
}

// TriggerType maps a lead event to the workflow trigger class it can
// enroll for. The second return is false for event types that never enroll
// directly (polled and engine events).
func (e LeadEvent) TriggerType() (models.TriggerType, bool) {
	switch e.Type {
	case LeadCreatedEvent:
		return models.TriggerLeadCreated, true
	case LeadUpdatedEvent:
		return models.TriggerLeadUpdated, true
	case StageChangedEvent:
		return models.TriggerStageChanged, true
	case FieldUpdateEvent:
		return models.TriggerFieldUpdate, true
	case UserActivityEvent:
		return models.TriggerUserActivity, true
	default:
		return "", false
	}
}

// ExecutionResume wakes an execution parked on an event-based wait step.
type ExecutionResume struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	EventName   string `json:"event_name"`
}

func (e ExecutionResume) GetType() EventType {
	return ExecutionResumeEvent
}

// ExecutionEnrolled announces a new enrollment.
type ExecutionEnrolled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
}

func (e ExecutionEnrolled) GetType() EventType {
	return ExecutionEnrolledEvent
}

// ExecutionFinished announces a terminal execution, with its final status.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      models.ExecutionStatus `json:"status"`
	Error       string                 `json:"error,omitempty"`
}

func (e ExecutionFinished) GetType() EventType {
	switch e.Status {
	case models.ExecutionStatusFailed:
		return ExecutionFailedEvent
	case models.ExecutionStatusCancelled:
		return ExecutionCancelledEvent
	default:
		return ExecutionFinishedEvent
	}
}
