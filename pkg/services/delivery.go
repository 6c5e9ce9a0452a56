package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
)

// DeliveryEvent is a provider webhook event class.
type DeliveryEvent string

const (
	DeliveryDelivered DeliveryEvent = "delivered"
	DeliveryBounced   DeliveryEvent = "bounced"
	DeliveryFailed    DeliveryEvent = "failed"
	DeliveryOpened    DeliveryEvent = "opened"
	DeliveryClicked   DeliveryEvent = "clicked"
	DeliveryReplied   DeliveryEvent = "replied"
)

// DeliveryUpdate is one inbound provider webhook, keyed by the provider
// message id the dispatcher recorded.
type DeliveryUpdate struct {
	ProviderMessageID string        `json:"provider_message_id" validate:"required"`
	Event             DeliveryEvent `json:"event"               validate:"required"`
	Timestamp         *time.Time    `json:"timestamp,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// Delivery applies provider webhooks to message logs. Updates are
// idempotent: replaying the same webhook leaves the row unchanged.
type Delivery struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	now         func() time.Time
}

func NewDelivery(logger *slog.Logger, p persistence.Persistence) *Delivery {
	return &Delivery{
		persistence: p,
		logger:      logger.With("module", "delivery_service"),
		now:         time.Now,
	}
}

// Apply updates the message log row for the webhook. It returns the
// updated row and whether the webhook changed anything.
func (s *Delivery) Apply(ctx context.Context, update DeliveryUpdate) (*models.MessageLog, bool, error) {
	if update.ProviderMessageID == "" {
		return nil, false, NewValidationError("Apply", "INVALID_REQUEST", "provider_message_id is required", ErrInvalidRequest)
	}

	entry, err := s.persistence.MessageLogRepository().GetByProviderMessageID(ctx, update.ProviderMessageID)
	if err != nil {
		return nil, false, err
	}

	timestamp := s.now().UTC()
	if update.Timestamp != nil {
		timestamp = update.Timestamp.UTC()
	}

	changed := false

	switch update.Event {
	case DeliveryDelivered:
		if entry.DeliveredAt == nil {
			entry.DeliveredAt = &timestamp
			changed = true
		}

		changed = s.promoteStatus(entry, models.MessageStatusDelivered) || changed

	case DeliveryBounced:
		if entry.Status != models.MessageStatusBounced {
			entry.Status = models.MessageStatusBounced
			entry.ErrorMessage = update.Reason
			changed = true
		}

	case DeliveryFailed:
		if entry.Status != models.MessageStatusFailed && entry.Status != models.MessageStatusBounced {
			entry.Status = models.MessageStatusFailed
			entry.ErrorMessage = update.Reason
			changed = true
		}

	case DeliveryOpened:
		changed = setOnce(&entry.OpenedAt, timestamp)
		changed = s.promoteStatus(entry, models.MessageStatusDelivered) || changed

	case DeliveryClicked:
		changed = setOnce(&entry.ClickedAt, timestamp)
		changed = s.promoteStatus(entry, models.MessageStatusDelivered) || changed

	case DeliveryReplied:
		changed = setOnce(&entry.RepliedAt, timestamp)
		changed = s.promoteStatus(entry, models.MessageStatusDelivered) || changed

	default:
		return nil, false, NewValidationError(
			"Apply",
			"UNKNOWN_DELIVERY_EVENT",
			fmt.Sprintf("unknown delivery event %q", update.Event),
			ErrUnknownDeliveryEvent,
		)
	}

	if !changed {
		return entry, false, nil
	}

	if err := s.persistence.MessageLogRepository().Save(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("failed to save message log: %w", err)
	}

	s.logger.InfoContext(ctx, "Delivery update applied",
		"provider_message_id", update.ProviderMessageID,
		"event", update.Event,
		"status", entry.Status,
	)

	return entry, true, nil
}

// promoteStatus moves Pending/Sent rows forward, never backward.
func (s *Delivery) promoteStatus(entry *models.MessageLog, status models.MessageStatus) bool {
	if entry.Status == models.MessageStatusPending || entry.Status == models.MessageStatusSent {
		if entry.Status != status {
			entry.Status = status

			return true
		}
	}

	return false
}

func setOnce(field **time.Time, value time.Time) bool {
	if *field != nil {
		return false
	}

	*field = &value

	return true
}
