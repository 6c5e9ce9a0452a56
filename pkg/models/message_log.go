package models

import "time"

// MessageLog is the delivery and engagement record for one dispatched
// message. Provider webhooks update it idempotently, keyed by
// ProviderMessageID.
type MessageLog struct {
	ID          string `json:"id"`
	LeadID      string `json:"lead_id,omitempty"`
	ExecutionID string `json:"workflow_execution_id,omitempty"`
	TemplateID  string `json:"template_id,omitempty"`

	Channel   ChannelType `json:"channel"   validate:"required"`
	Recipient string      `json:"recipient" validate:"required"`

	// Rendered content, after token replacement.
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	Status      MessageStatus `json:"status"`
	SentAt      *time.Time    `json:"sent_at,omitempty"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`

	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	RepliedAt *time.Time `json:"replied_at,omitempty"`

	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
