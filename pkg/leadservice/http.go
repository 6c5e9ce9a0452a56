package leadservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the CRM's lead API over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetLeadFields(ctx context.Context, leadID string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/leads/"+leadID+"/fields", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lead request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lead service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrLeadNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lead service returned status %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read lead response: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(bodyBytes, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode lead fields: %w", err)
	}

	return fields, nil
}

func (c *HTTPClient) ListLeadIDs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/leads/ids", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lead request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lead service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lead service returned status %d", resp.StatusCode)
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("failed to decode lead ids: %w", err)
	}

	return ids, nil
}

func (c *HTTPClient) ApplyFieldUpdate(ctx context.Context, leadID string, updates map[string]any) error {
	return c.patch(ctx, "/leads/"+leadID+"/fields", updates)
}

func (c *HTTPClient) AssignLead(ctx context.Context, leadID, userID, team string) error {
	payload := map[string]any{}
	if userID != "" {
		payload["assigned_to_user_id"] = userID
	}

	if team != "" {
		payload["assigned_team"] = team
	}

	return c.patch(ctx, "/leads/"+leadID+"/assignment", payload)
}

func (c *HTTPClient) patch(ctx context.Context, path string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode lead update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create lead request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("lead service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrLeadNotFound
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("lead service returned status %d", resp.StatusCode)
	}

	return nil
}
