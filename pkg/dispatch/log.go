package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogDispatcher writes messages to the log instead of a provider. Used
// in development and as the fallback when no gateway is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "log_dispatcher")}
}

func (d *LogDispatcher) Send(ctx context.Context, message Message) (Receipt, error) {
	receipt := Receipt{ProviderMessageID: uuid.NewString()}

	d.logger.InfoContext(ctx, "Dispatched message",
		"channel", message.Channel,
		"recipient", message.Recipient,
		"subject", message.Subject,
		"provider_message_id", receipt.ProviderMessageID,
	)

	return receipt, nil
}
