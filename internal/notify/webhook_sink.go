package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// WebhookSink posts contracts as JSON. The contract's endpoint wins over
// the default URL.
type WebhookSink struct {
	defaultURL string
	timeout    time.Duration
}

// NewWebhookSink builds a WebhookSink.
func NewWebhookSink(defaultURL string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{defaultURL: defaultURL, timeout: timeout}
}

type webhookAck struct {
	ID string `json:"id"`
}

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, c Contract) (Receipt, error) {
	url := c.Endpoint
	if url == "" {
		url = s.defaultURL
	}
	if url == "" {
		return Receipt{}, fmt.Errorf("webhook: no endpoint for recipient %s", c.RecipientID)
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return Receipt{}, context.DeadlineExceeded
	}

	agent := fiber.Post(url)
	agent.Set("X-Alert-Id", c.AlertID)
	agent.JSON(c)
	agent.Timeout(timeout)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return Receipt{}, fmt.Errorf("webhook post: %w", errs[0])
	}
	if status < 200 || status >= 300 {
		return Receipt{}, fmt.Errorf("webhook post: unexpected status %d", status)
	}
	var ack webhookAck
	if len(body) > 0 {
		_ = json.Unmarshal(body, &ack)
	}
	return Receipt{ProviderID: ack.ID, AcceptedAt: time.Now()}, nil
}
