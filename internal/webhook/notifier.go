// Package webhook posts rejected-request notifications to the community's
// moderation endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/obstacle-community/records/internal/config"
)

// Notifier delivers invalid-request reports. It is fire-and-forget: a
// delivery failure is logged and never surfaced to the game client.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// InvalidRequest describes one rejected inbound request.
type InvalidRequest struct {
	RequestID string `json:"request_id"`
	Route     string `json:"route"`
	UserAgent string `json:"user_agent"`
	Reason    string `json:"reason"`
	Login     string `json:"login,omitempty"`
	Tstp      int64  `json:"tstp"`
}

// NewNotifier creates a notifier; with no URL configured it is a no-op.
func NewNotifier(cfg *config.WebhookConfig, logger *slog.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:    cfg.InvalidReqURL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// NotifyInvalidRequest posts the report in the background.
func (n *Notifier) NotifyInvalidRequest(req InvalidRequest) {
	if n.url == "" {
		return
	}
	if req.Tstp == 0 {
		req.Tstp = time.Now().Unix()
	}
	go func() {
		if err := n.post(req); err != nil {
			n.logger.Warn("failed to deliver invalid-request webhook",
				"request_id", req.RequestID, "error", err)
		}
	}()
}

func (n *Notifier) post(req InvalidRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
