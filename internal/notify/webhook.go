package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// WebhookBackend POSTs each event as JSON to an HTTP endpoint.
type WebhookBackend struct {
	url    string
	client *http.Client
}

func NewWebhookBackend(url string, timeout time.Duration) *WebhookBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookBackend{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookBackend) Name() string {
	return "webhook"
}

func (w *WebhookBackend) Publish(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook publish: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookBackend) Close() error {
	return nil
}
