package dispatch

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RoutesByChannel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := NewRegistry()
	registry.Register(models.ChannelEmail, NewLogDispatcher(logger))

	receipt, err := registry.Send(t.Context(), Message{
		Channel:   models.ChannelEmail,
		Recipient: "asha@example.com",
		Body:      "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ProviderMessageID)

	_, err = registry.Send(t.Context(), Message{Channel: models.ChannelSMS})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dispatcher registered")
}

func TestWebhookDispatcher_Send(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]string{"provider_message_id": "prov-1"})
	}))
	defer server.Close()

	dispatcher := NewWebhookDispatcher(server.URL, map[string]string{"Authorization": "Bearer token"}, time.Second)

	receipt, err := dispatcher.Send(t.Context(), Message{
		Channel:   models.ChannelWhatsApp,
		Recipient: "+911234567890",
		Body:      "Hi Asha!",
		MediaURL:  "https://cdn.example.com/brochure.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "prov-1", receipt.ProviderMessageID)
	assert.Equal(t, "WHATSAPP", received["channel"])
	assert.Equal(t, "+911234567890", received["recipient"])
}

func TestWebhookDispatcher_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"bad recipient", http.StatusUnprocessableEntity, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			dispatcher := NewWebhookDispatcher(server.URL, nil, time.Second)

			_, err := dispatcher.Send(t.Context(), Message{Channel: models.ChannelSMS})
			require.Error(t, err)
			assert.Equal(t, tt.transient, retry.IsTransient(err))
		})
	}
}

func TestWebhookDispatcher_ConnectionErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	dispatcher := NewWebhookDispatcher(server.URL, nil, time.Second)

	_, err := dispatcher.Send(t.Context(), Message{Channel: models.ChannelPush})
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}
