package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPNotifier is an HTTP implementation of the Notifier interface. Callers
// already treat notification as fire-and-forget; this client only reports
// the delivery attempt.
type HTTPNotifier struct {
	url string
}

// NewHTTPNotifier creates a new HTTPNotifier.
func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{url: url}
}

// Notify posts one notification to the delivery service.
func (c *HTTPNotifier) Notify(ctx context.Context, userID, event string, payload map[string]any) error {
	requestBody, err := json.Marshal(map[string]any{
		"user_id": userID,
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/notify", bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier drops every notification. Used when no delivery service is
// configured.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string, string, map[string]any) error { return nil }
