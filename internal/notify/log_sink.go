package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogSink writes contracts to the log. It stands in for channels without a
// configured provider.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send implements Sink.
func (s *LogSink) Send(ctx context.Context, c Contract) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	s.logger.Info("alert delivered",
		zap.String("alert_id", c.AlertID),
		zap.String("ticket_id", c.TicketID),
		zap.String("alert_type", string(c.AlertType)),
		zap.String("priority", string(c.Priority)),
		zap.String("channel", string(c.Channel)),
		zap.String("recipient_id", c.RecipientID),
		zap.String("subject", c.Subject))
	return Receipt{ProviderID: "log-" + uuid.NewString(), AcceptedAt: time.Now()}, nil
}
