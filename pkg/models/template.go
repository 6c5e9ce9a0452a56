package models

import "time"

// CommunicationTemplate holds channel content with token placeholders such
// as {{name}}. Templates referenced by steps with live executions are
// treated as immutable; authors replace them with new templates instead of
// mutating in place.
type CommunicationTemplate struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"    validate:"required"`
	Channel ChannelType `json:"channel" validate:"required"`

	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body" validate:"required"`
	HTMLBody string `json:"html_body,omitempty"`

	// AvailableTokens lists the placeholders authors may use, e.g.
	// ["{{name}}", "{{course}}", "{{stage}}"].
	AvailableTokens []string `json:"available_tokens,omitempty"`

	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	Category string `json:"category,omitempty"`
	Active   bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
