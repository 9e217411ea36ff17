package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/lifecycle"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/risk"
)

// transition is the outcome of one ticket write.
type transition struct {
	ticket       *domain.Ticket
	from         domain.TicketStatus
	steps        []domain.TicketStatus
	newConflicts []domain.Conflict
	reason       string
}

func (t *transition) changed() bool {
	return len(t.steps) > 0
}

func (t *transition) events(actor domain.Actor) []events.Event {
	var out []events.Event
	for _, c := range t.newConflicts {
		out = append(out, events.Event{
			Type:     events.EventConflictDetected,
			TicketID: t.ticket.ID,
			Actor:    actor,
			Payload:  events.ConflictPayload{ConflictID: c.ID, Kind: c.Kind, Reason: c.Reason},
		})
	}
	prev := t.from
	for _, step := range t.steps {
		out = append(out, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: t.ticket.ID,
			Actor:    actor,
			Payload:  events.TicketStatusChangedPayload{OldStatus: prev, NewStatus: step, Reason: t.reason},
		})
		prev = step
	}
	return out
}

// reconcile re-derives a ticket's status from its responses and conflicts
// and writes it back. It detects new conflicts first, so a contradiction
// always wins over the clear path.
func (b *base) reconcile(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.Actor, reason string, now time.Time) (*transition, error) {
	responses, err := tx.Responses().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	detected, err := b.detectConflicts(ctx, tx, ticket.ID, responses, actor, now)
	if err != nil {
		return nil, err
	}
	open, err := tx.Conflicts().ListOpenByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}

	target := lifecycle.Target(ticket.Status, responses, len(open))
	steps, err := lifecycle.Plan(ticket.Status, target)
	if err != nil {
		return nil, err
	}

	result := &transition{ticket: ticket, from: ticket.Status, newConflicts: detected, reason: reason}
	if err := b.applySteps(ctx, tx, result, steps, actor, now); err != nil {
		return nil, err
	}

	summary := lifecycle.Summarize(responses)
	ticket.TotalUtilities = summary.Total
	ticket.RespondedUtilities = summary.Responded
	ticket.RiskScore = risk.Score(risk.InputFor(ticket, responses, len(open)), now)
	ticket.UpdatedAt = now
	if err := tx.Tickets().Update(ctx, ticket); err != nil {
		return nil, err
	}
	return result, nil
}

// moveTo performs a single requested transition, such as a cancellation
// or an expiry, and re-scores the ticket.
func (b *base) moveTo(ctx context.Context, tx repository.Store, ticket *domain.Ticket, to domain.TicketStatus, actor domain.Actor, reason string, now time.Time) (*transition, error) {
	if err := lifecycle.Validate(ticket.Status, to); err != nil {
		return nil, err
	}
	responses, err := tx.Responses().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	open, err := tx.Conflicts().ListOpenByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}

	result := &transition{ticket: ticket, from: ticket.Status, reason: reason}
	if err := b.applySteps(ctx, tx, result, []domain.TicketStatus{to}, actor, now); err != nil {
		return nil, err
	}
	ticket.RiskScore = risk.Score(risk.InputFor(ticket, responses, len(open)), now)
	ticket.UpdatedAt = now
	if err := tx.Tickets().Update(ctx, ticket); err != nil {
		return nil, err
	}
	if to.Terminal() {
		if _, err := b.supersedeOpenAcks(ctx, tx, ticket.ID, "ticket "+string(to), now); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (b *base) applySteps(ctx context.Context, tx repository.Store, result *transition, steps []domain.TicketStatus, actor domain.Actor, now time.Time) error {
	ticket := result.ticket
	for _, next := range steps {
		if err := lifecycle.Validate(ticket.Status, next); err != nil {
			return err
		}
		err := b.appendHistory(ctx, tx, ticket.ID, actor, domain.ChangeTypeStatus,
			map[string]any{"status": ticket.Status},
			map[string]any{"status": next, "reason": result.reason},
			now)
		if err != nil {
			return err
		}
		ticket.Status = next
		result.steps = append(result.steps, next)
	}
	if ticket.Status.Terminal() && ticket.ClosedAt == nil {
		ticket.ClosedAt = &now
	}
	return nil
}

// supersedeOpenAcks closes the open acknowledgement rows of a ticket that
// can no longer be acted on.
func (b *base) supersedeOpenAcks(ctx context.Context, tx repository.Store, ticketID, reason string, now time.Time) (int, error) {
	rows, err := tx.Acknowledgements().ListOpenByTicket(ctx, ticketID)
	if err != nil {
		return 0, fmt.Errorf("list open acknowledgements: %w", err)
	}
	count := 0
	for i := range rows {
		ok, err := b.supersede(ctx, tx, &rows[i], reason, now)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (b *base) supersede(ctx context.Context, tx repository.Store, row *domain.AlertAcknowledgement, reason string, now time.Time) (bool, error) {
	next := *row
	next.Status = domain.AckStatusSuperseded
	next.EscalationReason = &reason
	next.UpdatedAt = now
	ok, err := tx.Acknowledgements().CompareAndSetStatus(ctx, &next, row.Status)
	if err != nil || !ok {
		return false, err
	}
	err = b.appendAudit(ctx, tx, domain.AuditEntityAcknowledgement, row.ID, row.TicketID, "SUPERSEDED",
		domain.SystemActor("lifecycle"), map[string]any{"alert_id": row.AlertID, "user_id": row.UserID, "reason": reason}, now)
	return err == nil, err
}
