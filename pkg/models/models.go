// Package models defines the core domain models for lead automation workflows.
package models

// ChannelType identifies a message delivery medium.
type ChannelType string

const (
	ChannelEmail    ChannelType = "EMAIL"
	ChannelSMS      ChannelType = "SMS"
	ChannelWhatsApp ChannelType = "WHATSAPP"
	ChannelPush     ChannelType = "PUSH"
)

// TriggerType identifies the event class that enrolls leads into a workflow.
type TriggerType string

const (
	TriggerLeadCreated  TriggerType = "LEAD_CREATED"
	TriggerLeadUpdated  TriggerType = "LEAD_UPDATED"
	TriggerStageChanged TriggerType = "STAGE_CHANGED"
	TriggerFieldUpdate  TriggerType = "FIELD_UPDATE"
	TriggerTimeDelay    TriggerType = "TIME_DELAY"
	TriggerSpecificDate TriggerType = "SPECIFIC_DATE"
	TriggerUserActivity TriggerType = "USER_ACTIVITY"
	TriggerManual       TriggerType = "MANUAL"
)

// IsPolled reports whether workflows with this trigger type are enrolled by
// the periodic poller rather than by inbound domain events.
func (t TriggerType) IsPolled() bool {
	return t == TriggerTimeDelay || t == TriggerSpecificDate
}

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "DRAFT"
	WorkflowStatusActive   WorkflowStatus = "ACTIVE"
	WorkflowStatusPaused   WorkflowStatus = "PAUSED"
	WorkflowStatusArchived WorkflowStatus = "ARCHIVED"
)

// ExecutionStatus represents the state of one lead's run through a workflow.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether the execution can never run again.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// MessageStatus represents the delivery state of a dispatched message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusFailed    MessageStatus = "FAILED"
	MessageStatusBounced   MessageStatus = "BOUNCED"
)
