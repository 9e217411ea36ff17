package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/notify"
	"github.com/spec-kit/locate-service/internal/observability"
)

// NotificationService turns domain events into metrics, logs and
// operational notices.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	ops        notify.Sink
}

// NewNotificationService creates the service. ops may be nil, in which case
// operational notices are only logged.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, ops notify.Sink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		ops:        ops,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventConflictDetected, n.handleConflictDetected)
	n.dispatcher.Subscribe(events.EventAlertFailed, n.handleAlertFailed)
	n.dispatcher.Subscribe(events.EventAlertEscalated, n.handleAlertEscalated)
	n.dispatcher.Subscribe(events.EventTicketFlagged, n.handleTicketFlagged)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.metrics.Transition(string(payload.OldStatus), string(payload.NewStatus))
	n.logger.Info("TicketStatusChanged",
		zap.String("ticket_id", event.TicketID),
		zap.String("old_status", string(payload.OldStatus)),
		zap.String("new_status", string(payload.NewStatus)),
		zap.String("reason", payload.Reason))
	return nil
}

func (n *NotificationService) handleConflictDetected(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ConflictPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.metrics.ConflictDetected(string(payload.Kind))
	n.logger.Info("ConflictDetected",
		zap.String("ticket_id", event.TicketID),
		zap.String("conflict_id", payload.ConflictID),
		zap.String("kind", string(payload.Kind)))
	return nil
}

func (n *NotificationService) handleAlertEscalated(_ context.Context, event events.Event) error {
	n.logger.Warn("AlertEscalated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleAlertFailed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AlertPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.metrics.DispatchFailed(string(payload.AlertType))
	n.logger.Error("AlertFailed",
		zap.String("ticket_id", event.TicketID),
		zap.String("alert_id", payload.AlertID),
		zap.Int("attempts", payload.Attempts),
		zap.String("reason", payload.Reason))
	n.notifyOps(ctx, event, fmt.Sprintf("Alert %s failed", payload.AlertType),
		fmt.Sprintf("Alert %s failed after %d attempt(s): %s", payload.AlertID, payload.Attempts, payload.Reason))
	return nil
}

func (n *NotificationService) handleTicketFlagged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketFlaggedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.metrics.TicketFlagged()
	n.logger.Error("TicketFlagged", zap.String("ticket_id", event.TicketID), zap.String("error", payload.Error))
	n.notifyOps(ctx, event, "Ticket flagged for review", payload.Error)
	return nil
}

func (n *NotificationService) notifyOps(ctx context.Context, event events.Event, subject, body string) {
	if n.ops == nil {
		return
	}
	_, err := n.ops.Send(ctx, notify.Contract{
		AlertID:   event.ID,
		TicketID:  event.TicketID,
		AlertType: domain.AlertType(event.Type),
		Priority:  domain.PriorityHigh,
		Channel:   domain.ChannelWebhook,
		Subject:   subject,
		Body:      body,
	})
	if err != nil {
		n.logger.Warn("operational notice failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}
