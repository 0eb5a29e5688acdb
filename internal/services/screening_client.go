package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPScreeningClient is an HTTP implementation of the ScreeningClient
// interface.
type HTTPScreeningClient struct {
	url string
}

// NewHTTPScreeningClient creates a new HTTPScreeningClient.
func NewHTTPScreeningClient(url string) *HTTPScreeningClient {
	return &HTTPScreeningClient{url: url}
}

// FindCompletedSession returns the most recent completed session for the
// template, or empty when none exists yet.
func (c *HTTPScreeningClient) FindCompletedSession(ctx context.Context, templateID string) (string, error) {
	u := c.url + "/sessions/completed?template_id=" + url.QueryEscape(templateID)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("screening service returned status %d", resp.StatusCode)
	}

	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	return result.SessionID, nil
}

// CreateSingleUseLink creates a single-use interview link for the template.
func (c *HTTPScreeningClient) CreateSingleUseLink(ctx context.Context, templateID string) (string, error) {
	requestBody, err := json.Marshal(map[string]string{"template_id": templateID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/links", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("screening service returned status %d", resp.StatusCode)
	}

	var result struct {
		LinkID string `json:"link_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	return result.LinkID, nil
}
