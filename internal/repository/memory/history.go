package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/spec-kit/locate-service/internal/domain"
)

type historyRepo struct{ s *Store }

func (r historyRepo) Create(_ context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id := history.ID
	r.s.record(func() {
		r.s.data.history = slices.DeleteFunc(r.s.data.history, func(h domain.TicketHistory) bool { return h.ID == id })
	})
	r.s.data.history = append(r.s.data.history, *history)
	return nil
}

func (r historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.s.data.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Append(_ context.Context, event *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id := event.ID
	r.s.record(func() {
		r.s.data.audit = slices.DeleteFunc(r.s.data.audit, func(e domain.AuditEvent) bool { return e.ID == id })
	})
	r.s.data.audit = append(r.s.data.audit, *event)
	return nil
}

func (r auditRepo) ListByEntity(_ context.Context, entity domain.AuditEntity, entityID string) ([]domain.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range r.s.data.audit {
		if e.EntityType == entity && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
