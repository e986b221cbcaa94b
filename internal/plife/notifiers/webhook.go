package notifiers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/daniacca/plife/internal/plife"
)

// WebhookNotifier sends simulation events to a webhook URL via HTTP
// POST. Intended for lifecycle events (started, stopped, reset); frame
// events are far too chatty for a webhook and should go through the
// WebSocket notifier instead.
type WebhookNotifier struct {
	id      string
	url     string
	client  *http.Client
	headers map[string]string
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(id, url string) *WebhookNotifier {
	return &WebhookNotifier{
		id:  id,
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// ID returns the notifier ID
func (wn *WebhookNotifier) ID() string {
	return wn.id
}

// Type returns the notifier type
func (wn *WebhookNotifier) Type() string {
	return "webhook"
}

// SetHeader sets a custom header for webhook requests
func (wn *WebhookNotifier) SetHeader(key, value string) {
	wn.headers[key] = value
}

// Notify sends the event to the webhook URL
func (wn *WebhookNotifier) Notify(ctx context.Context, event plife.Event) error {
	jsonData, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range wn.headers {
		req.Header.Set(key, value)
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Close closes the notifier (no-op for webhooks)
func (wn *WebhookNotifier) Close() error {
	return nil
}
