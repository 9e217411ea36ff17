package memory

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

type responseRepo struct{ s *Store }

func (r responseRepo) Create(_ context.Context, response *domain.UtilityResponse) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.responses
	for _, existing := range m {
		if existing.TicketID == response.TicketID && existing.UtilityCode == response.UtilityCode {
			return errDuplicate("utility response", response.TicketID+"/"+response.UtilityCode)
		}
	}
	response.UpdatedAt = response.CreatedAt
	r.s.record(restoreKey(m, response.ID))
	m[response.ID] = *response
	return nil
}

func (r responseRepo) Update(_ context.Context, response *domain.UtilityResponse) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.responses
	stored, ok := m[response.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	next := *response
	next.TicketID = stored.TicketID
	next.UtilityCode = stored.UtilityCode
	next.ResponseWindowOpensAt = stored.ResponseWindowOpensAt
	next.ResponseWindowClosesAt = stored.ResponseWindowClosesAt
	next.CreatedAt = stored.CreatedAt
	r.s.record(restoreKey(m, response.ID))
	m[response.ID] = next
	return nil
}

func (r responseRepo) GetByTicketAndUtility(_ context.Context, ticketID, utilityCode string) (*domain.UtilityResponse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, stored := range r.s.data.responses {
		if stored.TicketID == ticketID && stored.UtilityCode == utilityCode {
			return &stored, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r responseRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.UtilityResponse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.UtilityResponse
	for _, stored := range r.s.data.responses {
		if stored.TicketID == ticketID {
			out = append(out, stored)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UtilityCode < out[j].UtilityCode })
	return out, nil
}
