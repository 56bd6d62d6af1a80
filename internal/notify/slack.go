// Package notify delivers channel messages.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

// DefaultTimeout bounds a single webhook call when none is configured.
const DefaultTimeout = 10 * time.Second

// SlackWebhook posts messages to a Slack incoming webhook.
type SlackWebhook struct {
	url        string
	httpClient *http.Client
}

// NewSlackWebhook constructs a webhook notifier.
func NewSlackWebhook(url string, timeout time.Duration) *SlackWebhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SlackWebhook{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type slackPayload struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Send posts the message. Anything but HTTP 200 with an "ok" (or empty) body is a delivery failure.
func (s *SlackWebhook) Send(ctx context.Context, message, channel string) error {
	body, err := json.Marshal(slackPayload{Text: message, Channel: channel})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", approval.ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", approval.ErrDeliveryFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := strings.TrimSpace(string(reply))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: slack returned status %d: %s", approval.ErrDeliveryFailed, resp.StatusCode, text)
	}
	if text != "" && text != "ok" {
		return fmt.Errorf("%w: slack replied %q", approval.ErrDeliveryFailed, text)
	}
	return nil
}
