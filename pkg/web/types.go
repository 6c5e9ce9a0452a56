// Package web provides HTTP request and response types for the engine API.
package web

import (
	"time"

	"github.com/Ktej255/leadflow/pkg/services"
)

// LeadEventRequest represents an inbound CRM domain event.
type LeadEventRequest struct {
	Type    string         `json:"type"    validate:"required"`
	LeadID  string         `json:"lead_id" validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EnrollRequest represents a manual enrollment request for a workflow.
type EnrollRequest struct {
	LeadID string `json:"lead_id" validate:"required"`
}

// ResumeRequest wakes an execution parked on an event-based wait step.
type ResumeRequest struct {
	EventName string `json:"event_name" validate:"required"`
}

// SetStatusRequest represents a workflow lifecycle transition. Activation
// has its own endpoint because it runs full validation.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT PAUSED ARCHIVED"`
}

// DeliveryWebhookRequest represents an inbound provider delivery webhook,
// keyed by the provider message id recorded at dispatch time.
type DeliveryWebhookRequest struct {
	ProviderMessageID string     `json:"provider_message_id" validate:"required"`
	Event             string     `json:"event"               validate:"required"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

func (r DeliveryWebhookRequest) toUpdate() services.DeliveryUpdate {
	return services.DeliveryUpdate{
		ProviderMessageID: r.ProviderMessageID,
		Event:             services.DeliveryEvent(r.Event),
		Timestamp:         r.Timestamp,
		Reason:            r.Reason,
	}
}
