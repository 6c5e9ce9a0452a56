package models

import (
	"fmt"
	"time"
)

// StepType discriminates the WorkflowStep union.
type StepType string

const (
	StepTypeSendMessage StepType = "SEND_MESSAGE"
	StepTypeWait        StepType = "WAIT"
	StepTypeCondition   StepType = "CONDITION"
	StepTypeUpdateField StepType = "UPDATE_FIELD"
	StepTypeAssign      StepType = "ASSIGN"
)

// WorkflowStep is one node in a workflow's step graph. Exactly one payload
// field is set, matching Type.
type WorkflowStep struct {
	ID         string   `json:"id"`
	WorkflowID string   `json:"workflow_id"`
	OrderIndex int      `json:"order_index"`
	Name       string   `json:"name" validate:"required"`
	Type       StepType `json:"step_type" validate:"required"`

	SendMessage *SendMessageStep `json:"send_message,omitempty"`
	Wait        *WaitStep        `json:"wait,omitempty"`
	Condition   *ConditionStep   `json:"condition,omitempty"`
	UpdateField *UpdateFieldStep `json:"update_field,omitempty"`
	Assign      *AssignStep      `json:"assign,omitempty"`

	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageStep renders a template for the lead and dispatches it on the
// configured channel.
type SendMessageStep struct {
	Channel    ChannelType `json:"channel"     validate:"required"`
	TemplateID string      `json:"template_id" validate:"required"`
}

// WaitStep suspends an execution. Exactly one of the three wait modes is
// configured: a relative delay, an absolute date, or an event name the
// execution parks on until a resume call arrives.
type WaitStep struct {
	DurationMinutes *int       `json:"wait_duration_minutes,omitempty"`
	UntilDate       *time.Time `json:"wait_until_date,omitempty"`
	ForEvent        string     `json:"wait_for_event,omitempty"`
}

// Condition is a predicate over one lead field.
type Condition struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value"`
}

// ConditionStep branches on a lead field predicate. An empty branch target
// means "continue with the next ordinal step".
type ConditionStep struct {
	Condition     Condition `json:"condition_config"`
	TrueNextStep  string    `json:"true_next_step,omitempty"`
	FalseNextStep string    `json:"false_next_step,omitempty"`
}

// UpdateFieldStep applies a field-updates map through the lead service.
type UpdateFieldStep struct {
	Updates map[string]any `json:"field_updates" validate:"required"`
}

// AssignStep sets the lead owner or team through the lead service.
type AssignStep struct {
	UserID string `json:"assign_to_user_id,omitempty"`
	Team   string `json:"assign_to_team,omitempty"`
}

// Validate checks that the payload matching Type is present.
func (s *WorkflowStep) Validate() error {
	missing := false

	switch s.Type {
	case StepTypeSendMessage:
		missing = s.SendMessage == nil
	case StepTypeWait:
		missing = s.Wait == nil
	case StepTypeCondition:
		missing = s.Condition == nil
	case StepTypeUpdateField:
		missing = s.UpdateField == nil
	case StepTypeAssign:
		missing = s.Assign == nil
	default:
		return fmt.Errorf("step %s: unknown step type %q", s.ID, s.Type)
	}

	if missing {
		return fmt.Errorf("step %s: missing %s payload", s.ID, s.Type)
	}

	return nil
}
