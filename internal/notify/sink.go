// Package notify delivers alerts to transport sinks with bounded retries and
// a global dispatch rate limit.
package notify

import (
	"context"
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// Contract is one message to one endpoint.
type Contract struct {
	AlertID        string               `json:"alert_id"`
	TicketID       string               `json:"ticket_id,omitempty"`
	OrganizationID string               `json:"organization_id"`
	AlertType      domain.AlertType     `json:"alert_type"`
	Priority       domain.AlertPriority `json:"priority"`
	RecipientID    string               `json:"recipient_id"`
	Channel        domain.Channel       `json:"channel"`
	Endpoint       string               `json:"endpoint"`
	Subject        string               `json:"subject"`
	Body           string               `json:"body"`
	RequiresAck    bool                 `json:"requires_ack"`
}

// Receipt is what a sink reports for an accepted message.
type Receipt struct {
	ProviderID string
	AcceptedAt time.Time
}

// Sink sends a contract over one transport.
type Sink interface {
	Send(ctx context.Context, contract Contract) (Receipt, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, contract Contract) (Receipt, error)

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, contract Contract) (Receipt, error) {
	return f(ctx, contract)
}

// Target is a recipient endpoint on one channel.
type Target struct {
	UserID   string
	Channel  domain.Channel
	Endpoint string
}
