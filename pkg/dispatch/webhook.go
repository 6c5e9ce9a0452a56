package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Ktej255/leadflow/pkg/retry"
)

// WebhookDispatcher posts messages to a provider gateway endpoint and
// reads the provider message id from the response. One instance serves
// one channel's gateway.
type WebhookDispatcher struct {
	url     string
	headers map[string]string
	client  *http.Client
	timeout time.Duration
}

func NewWebhookDispatcher(url string, headers map[string]string, timeout time.Duration) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookDispatcher{
		url:     url,
		headers: headers,
		client:  &http.Client{},
		timeout: timeout,
	}
}

type webhookResponse struct {
	ProviderMessageID string `json:"provider_message_id"`
	MessageID         string `json:"message_id"`
}

func (d *WebhookDispatcher) Send(ctx context.Context, message Message) (Receipt, error) {
	payload, err := json.Marshal(map[string]any{
		"channel":    message.Channel,
		"recipient":  message.Recipient,
		"subject":    message.Subject,
		"body":       message.Body,
		"html_body":  message.HTMLBody,
		"media_url":  message.MediaURL,
		"media_type": message.MediaType,
	})
	if err != nil {
		return Receipt{}, retry.Permanent(fmt.Errorf("failed to encode message: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, retry.Permanent(fmt.Errorf("failed to create provider request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range d.headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Receipt{}, retry.Transient(fmt.Errorf("provider request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Receipt{}, retry.Transient(fmt.Errorf("provider returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return Receipt{}, retry.Permanent(fmt.Errorf("provider rejected message with status %d", resp.StatusCode))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Receipt{}, retry.Transient(fmt.Errorf("failed to read provider response: %w", err))
	}

	var parsed webhookResponse
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
			return Receipt{}, retry.Permanent(fmt.Errorf("failed to decode provider response: %w", err))
		}
	}

	providerID := parsed.ProviderMessageID
	if providerID == "" {
		providerID = parsed.MessageID
	}

	return Receipt{ProviderMessageID: providerID}, nil
}
