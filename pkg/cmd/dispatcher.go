package cmd

import (
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/dispatch"
	"github.com/Ktej255/leadflow/pkg/models"
)

const defaultDispatchTimeout = 10 * time.Second

// NewDispatcher builds the channel dispatcher registry. With a provider
// webhook URL every channel is delivered through it; without one messages
// are logged, which is the local development mode.
func NewDispatcher(logger *slog.Logger, providerURL string) *dispatch.Registry {
	registry := dispatch.NewRegistry()

	var dispatcher dispatch.Dispatcher
	if providerURL != "" {
		dispatcher = dispatch.NewWebhookDispatcher(providerURL, nil, defaultDispatchTimeout)
	} else {
		dispatcher = dispatch.NewLogDispatcher(logger)
	}

	for _, channel := range []models.ChannelType{
		models.ChannelEmail,
		models.ChannelSMS,
		models.ChannelWhatsApp,
		models.ChannelPush,
	} {
		registry.Register(channel, dispatcher)
	}

	return registry
}
