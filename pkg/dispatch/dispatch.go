// Package dispatch abstracts message delivery providers behind a single
// send contract keyed by channel.
package dispatch

import (
	"context"
	"fmt"

	"github.com/Ktej255/leadflow/pkg/models"
)

// Message is a fully rendered outbound message. Media fields are only
// set for channels that carry attachments.
type Message struct {
	Channel   models.ChannelType
	Recipient string
	Subject   string
	Body      string
	HTMLBody  string
	MediaURL  string
	MediaType string
}

// Receipt identifies the dispatched message at the provider. The
// provider id keys later webhook delivery updates.
type Receipt struct {
	ProviderMessageID string
}

// Dispatcher sends one message through a concrete provider. Errors
// should be wrapped with retry.Transient or retry.Permanent so the
// executor can decide whether to reschedule.
type Dispatcher interface {
	Send(ctx context.Context, message Message) (Receipt, error)
}

// Registry routes messages to the dispatcher registered for their channel.
type Registry struct {
	dispatchers map[models.ChannelType]Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{dispatchers: make(map[models.ChannelType]Dispatcher)}
}

func (r *Registry) Register(channel models.ChannelType, dispatcher Dispatcher) {
	r.dispatchers[channel] = dispatcher
}

func (r *Registry) Send(ctx context.Context, message Message) (Receipt, error) {
	dispatcher, ok := r.dispatchers[message.Channel]
	if !ok {
		return Receipt{}, fmt.Errorf("no dispatcher registered for channel %s", message.Channel)
	}

	return dispatcher.Send(ctx, message)
}
