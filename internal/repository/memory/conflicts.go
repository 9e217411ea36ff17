package memory

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

type conflictRepo struct{ s *Store }

func (r conflictRepo) CreateIfAbsent(_ context.Context, conflict *domain.Conflict) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.conflicts
	for _, existing := range m {
		if existing.TicketID == conflict.TicketID && existing.Fingerprint == conflict.Fingerprint {
			return false, nil
		}
	}
	stored := *conflict
	stored.UtilityCodes = cloneStrings(conflict.UtilityCodes)
	stored.EvidenceRefs = cloneStrings(conflict.EvidenceRefs)
	r.s.record(restoreKey(m, conflict.ID))
	m[conflict.ID] = stored
	return true, nil
}

func (r conflictRepo) Resolve(_ context.Context, conflict *domain.Conflict) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.conflicts
	stored, ok := m[conflict.ID]
	if !ok || !stored.Open() {
		return false, nil
	}
	r.s.record(restoreKey(m, conflict.ID))
	stored.ConflictResolvedAt = conflict.ConflictResolvedAt
	stored.ResolvedBy = conflict.ResolvedBy
	stored.ResolutionNotes = conflict.ResolutionNotes
	m[conflict.ID] = stored
	return true, nil
}

func (r conflictRepo) GetByID(_ context.Context, id string) (*domain.Conflict, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.conflicts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &stored, nil
}

func (r conflictRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Conflict, error) {
	return r.list(ticketID, false), nil
}

func (r conflictRepo) ListOpenByTicket(_ context.Context, ticketID string) ([]domain.Conflict, error) {
	return r.list(ticketID, true), nil
}

func (r conflictRepo) list(ticketID string, openOnly bool) []domain.Conflict {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Conflict
	for _, stored := range r.s.data.conflicts {
		if stored.TicketID != ticketID || (openOnly && !stored.Open()) {
			continue
		}
		out = append(out, stored)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
