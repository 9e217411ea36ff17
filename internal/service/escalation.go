package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/alerting"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
)

// escalationFor builds the supervisor escalation of original. Its dedup key
// is derived from the original alert, so each alert escalates at most once.
func (s *AlertService) escalationFor(original *domain.TicketAlert, supervisors []domain.User, msg alerting.Message, now time.Time) *domain.TicketAlert {
	rule := s.rules.Escalation()
	scope := original.TicketID
	if scope == "" {
		scope = alerting.OrganizationScope(original.OrganizationID)
	}
	return &domain.TicketAlert{
		ID:             uuid.NewString(),
		TicketID:       original.TicketID,
		OrganizationID: original.OrganizationID,
		AlertType:      domain.AlertEscalation,
		DedupKey:       alerting.DedupKey(scope, domain.AlertEscalation, original.ID),
		RuleName:       rule.Name,
		Channels:       rule.Channels,
		Priority:       rule.Priority,
		Subject:        msg.Subject,
		Body:           msg.Body,
		Recipients:     userIDs(supervisors),
		RequiresAck:    false,
		CreatedAt:      now,
	}
}

// sendEscalation announces a claimed escalation and delivers it when the
// dispatch budget allows. A deferred escalation is picked up by redelivery.
func (s *AlertService) sendEscalation(ctx context.Context, original, escalation *domain.TicketAlert, supervisors []domain.User, reason string, actor domain.Actor) error {
	s.metrics.Escalated()
	s.publish(ctx, events.Event{
		Type:     events.EventAlertEscalated,
		TicketID: original.TicketID,
		Actor:    actor,
		Payload: events.AlertPayload{
			AlertID:    escalation.ID,
			AlertType:  escalation.AlertType,
			Priority:   escalation.Priority,
			Recipients: len(supervisors),
			Reason:     reason,
		},
	})

	if len(supervisors) == 0 {
		s.logger.Warn("no supervisors to escalate to",
			zap.String("organization_id", original.OrganizationID), zap.String("alert_id", original.ID))
	}
	allowed, err := s.notifier.Allow(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		s.logger.Info("escalation claimed, delivery deferred", zap.String("alert_id", escalation.ID))
		return nil
	}
	return s.deliver(ctx, escalation, supervisorTargets(supervisors, escalation.Channels))
}

func escalationMessage(original *domain.TicketAlert, ticket *domain.Ticket, pending int) alerting.Message {
	ref := escalationRef(original, ticket)
	return alerting.Message{
		Subject: fmt.Sprintf("Escalation: %s not acknowledged (%s)", original.AlertType, ref),
		Body: fmt.Sprintf("%d recipient(s) did not acknowledge %q sent for %s. Original alert %s.",
			pending, original.Subject, ref, original.ID),
	}
}

func unroutedMessage(original *domain.TicketAlert, ticket *domain.Ticket) alerting.Message {
	ref := escalationRef(original, ticket)
	return alerting.Message{
		Subject: fmt.Sprintf("Escalation: %s has no recipients (%s)", original.AlertType, ref),
		Body: fmt.Sprintf("Nobody is subscribed to acknowledge %q for %s. Original alert %s.",
			original.Subject, ref, original.ID),
	}
}

func escalationRef(original *domain.TicketAlert, ticket *domain.Ticket) string {
	if ticket != nil {
		return ticket.TicketNumber
	}
	return original.OrganizationID
}

func userIDs(users []domain.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
