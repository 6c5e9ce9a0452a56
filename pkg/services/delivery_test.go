package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeliveryService(t *testing.T) (*Delivery, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewDelivery(logger, p), p
}

func seedSentMessage(t *testing.T, p persistence.Persistence) *models.MessageLog {
	t.Helper()

	sentAt := time.Now().UTC().Add(-time.Minute)
	entry := &models.MessageLog{
		LeadID:            "lead-1",
		Channel:           models.ChannelEmail,
		Recipient:         "asha@example.com",
		Body:              "Hi Asha",
		Status:            models.MessageStatusSent,
		SentAt:            &sentAt,
		ProviderMessageID: "prov-1",
	}
	require.NoError(t, p.MessageLogRepository().Save(t.Context(), entry))

	return entry
}

func TestApply_DeliveredIsIdempotent(t *testing.T) {
	service, p := newDeliveryService(t)
	ctx := t.Context()

	seedSentMessage(t, p)

	entry, changed, err := service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "prov-1", Event: DeliveryDelivered})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.MessageStatusDelivered, entry.Status)
	require.NotNil(t, entry.DeliveredAt)

	firstDeliveredAt := *entry.DeliveredAt

	// Replaying the same webhook changes nothing.
	entry, changed, err = service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "prov-1", Event: DeliveryDelivered})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, firstDeliveredAt, *entry.DeliveredAt)
}

func TestApply_EngagementTimestampsSetOnce(t *testing.T) {
	service, p := newDeliveryService(t)
	ctx := t.Context()

	seedSentMessage(t, p)

	first := time.Now().UTC().Add(-30 * time.Second)
	later := time.Now().UTC()

	entry, changed, err := service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "prov-1", Event: DeliveryOpened, Timestamp: &first})
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, entry.OpenedAt)
	assert.Equal(t, first, *entry.OpenedAt)

	// Engagement implies delivery.
	assert.Equal(t, models.MessageStatusDelivered, entry.Status)

	entry, changed, err = service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "prov-1", Event: DeliveryOpened, Timestamp: &later})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, *entry.OpenedAt)

	_, changed, err = service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "prov-1", Event: DeliveryClicked})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestApply_BounceOverridesDelivery(t *testing.T) {
	service, p := newDeliveryService(t)
	ctx := t.Context()

	seedSentMessage(t, p)

	entry, changed, err := service.Apply(ctx, DeliveryUpdate{
		ProviderMessageID: "prov-1",
		Event:             DeliveryBounced,
		Reason:            "mailbox full",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.MessageStatusBounced, entry.Status)
	assert.Equal(t, "mailbox full", entry.ErrorMessage)

	// A late delivered webhook cannot resurrect a bounced message.
	entry, _, err = service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "prov-1", Event: DeliveryDelivered})
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusBounced, entry.Status)
}

func TestApply_Guards(t *testing.T) {
	service, p := newDeliveryService(t)
	ctx := t.Context()

	seedSentMessage(t, p)

	_, _, err := service.Apply(ctx, DeliveryUpdate{Event: DeliveryDelivered})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, _, err = service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "missing", Event: DeliveryDelivered})
	assert.ErrorIs(t, err, persistence.ErrMessageLogNotFound)

	_, _, err = service.Apply(ctx, DeliveryUpdate{ProviderMessageID: "prov-1", Event: "exploded"})
	assert.ErrorIs(t, err, ErrUnknownDeliveryEvent)
	assert.True(t, IsValidationError(err))
}
