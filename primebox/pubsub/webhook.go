package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// WebhookEmitter posts bid and mint events to an external endpoint.
// Delivery is fire-and-forget: a dead endpoint never stalls a box round.
type WebhookEmitter struct {
	url  string
	http *http.Client
}

func NewWebhookEmitter(url string) *WebhookEmitter {
	return &WebhookEmitter{
		url:  url,
		http: &http.Client{Timeout: webhookTimeout},
	}
}

// Emit sends the payload in the background.
func (w *WebhookEmitter) Emit(payload interface{}) {
	if w == nil || w.url == "" {
		return
	}
	go func() {
		body, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal webhook payload",
				slog.String("type", "error"),
				slog.Any("error", err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.http.Do(req)
		if err != nil {
			slog.Warn("Webhook delivery failed",
				slog.String("url", w.url),
				slog.Any("error", err))
			return
		}
		resp.Body.Close()
	}()
}
