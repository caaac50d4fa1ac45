package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackWebhook posts to a Slack incoming webhook.
type SlackWebhook struct {
	URL        string
	HTTPClient *http.Client
}

func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type slackPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (s *SlackWebhook) Post(ctx context.Context, channel, text string) error {
	raw, err := json.Marshal(slackPayload{Channel: channel, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
