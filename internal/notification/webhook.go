package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier POSTs each alert as JSON. A 5xx answer is retried once
// after RetryDelay.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	RetryDelay time.Duration
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		RetryDelay: time.Second,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	status, err := w.post(ctx, body)
	if err == nil && status >= 500 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.RetryDelay):
		}
		status, err = w.post(ctx, body)
	}
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook: %s: unexpected status %d", alert.Title(), status)
	}
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook: send: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
