package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/repository"
)

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.data.tickets
	if _, ok := t[ticket.ID]; ok {
		return errDuplicate("ticket", ticket.ID)
	}
	for _, existing := range t {
		if existing.TicketNumber == ticket.TicketNumber {
			return errDuplicate("ticket number", ticket.TicketNumber)
		}
	}
	ticket.Version = 1
	ticket.UpdatedAt = ticket.CreatedAt
	r.s.record(restoreKey(t, ticket.ID))
	t[ticket.ID] = *ticket
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.data.tickets
	stored, ok := t[ticket.ID]
	if !ok || stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	next := stored
	next.Status = ticket.Status
	next.RiskScore = ticket.RiskScore
	next.TotalUtilities = ticket.TotalUtilities
	next.RespondedUtilities = ticket.RespondedUtilities
	next.ProcessingError = ticket.ProcessingError
	next.FlaggedAt = ticket.FlaggedAt
	next.ClosedAt = ticket.ClosedAt
	next.UpdatedAt = ticket.UpdatedAt
	next.Version++
	r.s.record(restoreKey(t, ticket.ID))
	t[ticket.ID] = next
	ticket.Version = next.Version
	return nil
}

func (r ticketRepo) RecordAlert(_ context.Context, ticketID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.data.tickets
	stored, ok := t[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	r.s.record(restoreKey(t, ticketID))
	stored.AlertCount++
	stored.LastAlertSentAt = &at
	t[ticketID] = stored
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &stored, nil
}

func (r ticketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, stored := range r.s.data.tickets {
		if stored.TicketNumber == number {
			return &stored, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r ticketRepo) ListActive(context.Context) ([]domain.Ticket, error) {
	out := r.filter(func(t *domain.Ticket) bool { return !t.Status.Terminal() })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r ticketRepo) ListFlagged(_ context.Context, organizationID string) ([]domain.Ticket, error) {
	out := r.filter(func(t *domain.Ticket) bool {
		return t.FlaggedAt != nil && (organizationID == "" || t.OrganizationID == organizationID)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FlaggedAt.After(*out[j].FlaggedAt) })
	return out, nil
}

func (r ticketRepo) ListRenewals(_ context.Context, parentID string) ([]domain.Ticket, error) {
	out := r.filter(func(t *domain.Ticket) bool {
		return t.ParentTicketID != nil && *t.ParentTicketID == parentID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r ticketRepo) filter(keep func(*domain.Ticket) bool) []domain.Ticket {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, stored := range r.s.data.tickets {
		if keep(&stored) {
			out = append(out, stored)
		}
	}
	return out
}
