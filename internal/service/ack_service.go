package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/worker"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

const escalationReason = "acknowledgement deadline passed"

var errAckRace = errors.New("acknowledgement changed concurrently")

// AckService tracks per-recipient delivery and acknowledgement, and
// escalates what nobody acknowledged in time.
type AckService struct {
	base
	alerts *AlertService
}

// AckDependencies bundles collaborators of the acknowledgement service.
type AckDependencies struct {
	Dependencies
	Alerts *AlertService
}

// NewAckService constructs the service.
func NewAckService(deps AckDependencies) *AckService {
	return &AckService{base: newBase(deps.Dependencies), alerts: deps.Alerts}
}

// DeliveryUpdate is the state after a delivery callback. Acknowledgement is
// nil for alerts that do not require one.
type DeliveryUpdate struct {
	Alert           *domain.TicketAlert
	Acknowledgement *domain.AlertAcknowledgement
}

// ListAcknowledgements returns every recipient row of an alert.
func (s *AckService) ListAcknowledgements(ctx context.Context, alertID string) ([]domain.AlertAcknowledgement, error) {
	if _, err := s.store.Alerts().GetByID(ctx, alertID); err != nil {
		return nil, notFound(err, "alert", map[string]any{"alert_id": alertID})
	}
	return s.store.Acknowledgements().ListByAlert(ctx, alertID)
}

// AcknowledgeAlert applies a recipient action. OPEN only moves the row
// forward; ACKNOWLEDGE closes it unless escalation or supersession got there
// first.
func (s *AckService) AcknowledgeAlert(ctx context.Context, alertID, userID string, action domain.AckAction) (*domain.AlertAcknowledgement, error) {
	if !action.Valid() {
		return nil, apperrors.NewValidationError("unknown action", map[string]any{"action": action})
	}
	return s.updateAck(ctx, alertID, userID, "ACK_"+string(action), func(row domain.AlertAcknowledgement, now time.Time) (*domain.AlertAcknowledgement, error) {
		switch row.Status {
		case domain.AckStatusEscalated, domain.AckStatusSuperseded:
			return nil, apperrors.NewAckExpired(alertID)
		case domain.AckStatusAcknowledged:
			if action == domain.AckActionAcknowledge {
				return nil, apperrors.NewAlreadyAcknowledged(alertID)
			}
			return nil, nil
		}
		next := row
		next.UpdatedAt = now
		if action == domain.AckActionOpen {
			if row.Status.Rank() >= domain.AckStatusOpened.Rank() {
				return nil, nil
			}
			next.Status = domain.AckStatusOpened
			return &next, nil
		}
		next.Status = domain.AckStatusAcknowledged
		next.AcknowledgedAt = &now
		return &next, nil
	})
}

// RecordDelivery applies a transport callback. Status only moves forward,
// and a callback arriving after the row closed changes nothing.
func (s *AckService) RecordDelivery(ctx context.Context, alertID, userID string, status domain.AckStatus) (*DeliveryUpdate, error) {
	if status != domain.AckStatusDelivered && status != domain.AckStatusOpened {
		return nil, apperrors.NewValidationError("status must be DELIVERED or OPENED", map[string]any{"status": status})
	}
	alert, err := s.store.Alerts().GetByID(ctx, alertID)
	if err != nil {
		return nil, notFound(err, "alert", map[string]any{"alert_id": alertID})
	}
	if alert.DeliveredAt == nil {
		now := s.now()
		alert.DeliveredAt = &now
		err := s.store.WithinTx(ctx, func(tx repository.Store) error {
			if err := tx.Alerts().UpdateDelivery(ctx, alert); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, domain.AuditEntityAlert, alert.ID, alert.TicketID, "DELIVERED",
				domain.UserActor(userID), map[string]any{"user_id": userID}, now)
		})
		if err != nil {
			return nil, fmt.Errorf("record alert delivery: %w", err)
		}
	}

	update := &DeliveryUpdate{Alert: alert}
	if !alert.RequiresAck {
		return update, nil
	}
	row, err := s.updateAck(ctx, alertID, userID, "DELIVERY_"+string(status), func(row domain.AlertAcknowledgement, now time.Time) (*domain.AlertAcknowledgement, error) {
		if row.Status.Closed() || row.Status.Rank() >= status.Rank() {
			return nil, nil
		}
		next := row
		next.Status = status
		next.UpdatedAt = now
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	update.Acknowledgement = row
	return update, nil
}

// updateAck runs a compare-and-set loop on one recipient row. decide
// returns nil to leave the row unchanged.
func (s *AckService) updateAck(ctx context.Context, alertID, userID, action string, decide func(domain.AlertAcknowledgement, time.Time) (*domain.AlertAcknowledgement, error)) (*domain.AlertAcknowledgement, error) {
	var result *domain.AlertAcknowledgement
	for attempt := 0; attempt <= s.retries; attempt++ {
		err := s.store.WithinTx(ctx, func(tx repository.Store) error {
			row, err := tx.Acknowledgements().GetByAlertAndUser(ctx, alertID, userID)
			if err != nil {
				return notFound(err, "acknowledgement", map[string]any{"alert_id": alertID, "user_id": userID})
			}
			now := s.now()
			next, err := decide(*row, now)
			if err != nil {
				return err
			}
			if next == nil {
				result = row
				return nil
			}
			ok, err := tx.Acknowledgements().CompareAndSetStatus(ctx, next, row.Status)
			if err != nil {
				return err
			}
			if !ok {
				return errAckRace
			}
			result = next
			return s.appendAudit(ctx, tx, domain.AuditEntityAcknowledgement, row.ID, row.TicketID, action,
				domain.UserActor(userID), map[string]any{"alert_id": alertID, "from": row.Status, "to": next.Status}, now)
		})
		if !errors.Is(err, errAckRace) {
			return result, err
		}
	}
	return nil, apperrors.NewConflict("acknowledgement was modified concurrently", map[string]any{"alert_id": alertID, "user_id": userID})
}

// EscalationSweep escalates overdue rows, one ESCALATION alert per original
// alert. Rows of tickets that closed meanwhile are superseded instead.
func (s *AckService) EscalationSweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	report := SweepReport{Sweep: "escalation", StartedAt: now}

	overdue, err := s.store.Acknowledgements().ListOverdue(ctx, now)
	if err != nil {
		return report, fmt.Errorf("list overdue acknowledgements: %w", err)
	}
	byAlert := map[string][]domain.AlertAcknowledgement{}
	for _, row := range overdue {
		byAlert[row.AlertID] = append(byAlert[row.AlertID], row)
	}
	alertIDs := make([]string, 0, len(byAlert))
	for id := range byAlert {
		alertIDs = append(alertIDs, id)
	}
	sort.Strings(alertIDs)
	report.Scanned = len(overdue)

	var mu sync.Mutex
	actor := domain.SystemActor("escalation-sweep")
	err = worker.ForEach(ctx, s.concurrency, alertIDs, func(ctx context.Context, alertID string) error {
		outcome, err := s.escalate(ctx, alertID, byAlert[alertID], now)
		if repository.IsUnavailable(err) {
			return fmt.Errorf("escalate alert %s: %w", alertID, err)
		}
		if err != nil {
			if outcome.ticketID != "" {
				s.flagTicket(ctx, outcome.ticketID, actor, err)
			} else {
				s.logger.Error("escalation failed", zap.String("alert_id", alertID), zap.Error(err))
			}
		}
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed++
			if outcome.ticketID != "" {
				report.Flagged++
			}
			return nil
		}
		report.Superseded += outcome.superseded
		report.Changed += outcome.escalatedRows
		if outcome.escalation != nil {
			report.Escalated++
		}
		return nil
	})
	return report, err
}

type escalationOutcome struct {
	ticketID      string
	superseded    int
	escalatedRows int
	escalation    *domain.TicketAlert
}

func (s *AckService) escalate(ctx context.Context, alertID string, rows []domain.AlertAcknowledgement, now time.Time) (escalationOutcome, error) {
	var out escalationOutcome
	original, err := s.store.Alerts().GetByID(ctx, alertID)
	if err != nil {
		return out, fmt.Errorf("load alert %s: %w", alertID, err)
	}
	out.ticketID = original.TicketID

	var ticket *domain.Ticket
	if original.TicketID != "" {
		ticket, err = s.store.Tickets().GetByID(ctx, original.TicketID)
		if err != nil {
			return out, fmt.Errorf("load ticket: %w", err)
		}
	}
	if ticket != nil && ticket.Status.Terminal() {
		err := s.store.WithinTx(ctx, func(tx repository.Store) error {
			for i := range rows {
				ok, err := s.supersede(ctx, tx, &rows[i], "ticket "+string(ticket.Status), now)
				if err != nil {
					return err
				}
				if ok {
					out.superseded++
				}
			}
			return nil
		})
		return out, err
	}

	supervisors, err := s.alerts.supervisors(ctx, original.OrganizationID)
	if err != nil {
		return out, err
	}
	escalatedTo := joinIDs(supervisors)
	if escalatedTo == "" {
		escalatedTo = "role:" + string(domain.RoleSupervisor)
	}

	escalation := s.alerts.escalationFor(original, supervisors, escalationMessage(original, ticket, len(rows)), now)

	actor := domain.SystemActor("escalation-sweep")
	claimed := false
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		for i := range rows {
			row := rows[i]
			next := row
			next.Status = domain.AckStatusEscalated
			next.EscalatedTo = &escalatedTo
			reason := escalationReason
			next.EscalationReason = &reason
			next.EscalatedAt = &now
			next.UpdatedAt = now
			ok, err := tx.Acknowledgements().CompareAndSetStatus(ctx, &next, row.Status)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			out.escalatedRows++
			err = s.appendAudit(ctx, tx, domain.AuditEntityAcknowledgement, row.ID, row.TicketID, "ESCALATED", actor,
				map[string]any{"alert_id": row.AlertID, "user_id": row.UserID, "escalated_to": escalatedTo}, now)
			if err != nil {
				return err
			}
		}
		if out.escalatedRows == 0 {
			return nil
		}
		var err error
		claimed, err = s.alerts.claim(ctx, tx, escalation, 0, actor, now)
		return err
	})
	if err != nil || !claimed {
		if err == nil && out.escalatedRows > 0 {
			s.logger.Debug("escalation already emitted", zap.String("alert_id", alertID))
		}
		return out, err
	}
	out.escalation = escalation
	return out, s.alerts.sendEscalation(ctx, original, escalation, supervisors, "unacknowledged "+string(original.AlertType), actor)
}
