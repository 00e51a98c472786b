package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// WebhookClient posts messages to a Slack- or Discord-compatible incoming
// webhook. The payload carries the message as both "text" (Slack) and
// "content" (Discord).
type WebhookClient struct {
	httpSink
	url   string
	token string
}

// NewWebhookClient creates a webhook sink. token, when set, is sent as a
// bearer token.
func NewWebhookClient(url, token string, opts HTTPOptions) *WebhookClient {
	return &WebhookClient{
		httpSink: newHTTPSink("webhook", opts),
		url:      url,
		token:    token,
	}
}

// Name implements Sink.
func (c *WebhookClient) Name() string { return c.name }

// Send implements Sink.
func (c *WebhookClient) Send(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return &NotificationError{Kind: Permanent, Backend: c.name, Err: ErrEmptyMessage}
	}
	if c.url == "" {
		return &NotificationError{Kind: Permanent, Backend: c.name, Err: errors.New("webhook URL is not configured")}
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	payload := map[string]string{"text": message, "content": message}
	if _, err := c.postJSON(ctx, c.url, payload, header); err != nil {
		return err
	}
	c.logger.Info("webhook delivered")
	return nil
}
