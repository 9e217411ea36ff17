package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

type alertRepo struct{ s *Store }

func (r alertRepo) CreateIfAbsent(_ context.Context, alert *domain.TicketAlert) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.alerts
	for _, existing := range m {
		if existing.DedupKey == alert.DedupKey {
			return false, nil
		}
	}
	r.s.record(restoreKey(m, alert.ID))
	m[alert.ID] = cloneAlert(*alert)
	return true, nil
}

func (r alertRepo) ExistsByDedupKey(_ context.Context, key string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.alerts {
		if existing.DedupKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (r alertRepo) UpdateDelivery(_ context.Context, alert *domain.TicketAlert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.alerts
	stored, ok := m[alert.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	r.s.record(restoreKey(m, alert.ID))
	stored.Channels = slices.Clone(alert.Channels)
	stored.Recipients = cloneStrings(alert.Recipients)
	stored.Attempts = alert.Attempts
	stored.SentAt = alert.SentAt
	stored.DeliveredAt = alert.DeliveredAt
	stored.FailedAt = alert.FailedAt
	stored.FailureReason = alert.FailureReason
	m[alert.ID] = stored
	return nil
}

func (r alertRepo) GetByID(_ context.Context, id string) (*domain.TicketAlert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.alerts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneAlert(stored)
	return &out, nil
}

func (r alertRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketAlert, error) {
	out := r.filter(func(a *domain.TicketAlert) bool { return a.TicketID == ticketID })
	return out, nil
}

func (r alertRepo) ListUndelivered(_ context.Context, limit int) ([]domain.TicketAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	out := r.filter(func(a *domain.TicketAlert) bool { return a.SentAt == nil && a.FailedAt == nil })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r alertRepo) filter(keep func(*domain.TicketAlert) bool) []domain.TicketAlert {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TicketAlert
	for _, stored := range r.s.data.alerts {
		if keep(&stored) {
			out = append(out, cloneAlert(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneAlert(a domain.TicketAlert) domain.TicketAlert {
	a.Channels = slices.Clone(a.Channels)
	a.Recipients = cloneStrings(a.Recipients)
	return a
}

type ackRepo struct{ s *Store }

func (r ackRepo) Create(_ context.Context, ack *domain.AlertAcknowledgement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.acks
	for _, existing := range m {
		if existing.AlertID == ack.AlertID && existing.UserID == ack.UserID {
			return nil
		}
	}
	ack.UpdatedAt = ack.CreatedAt
	r.s.record(restoreKey(m, ack.ID))
	m[ack.ID] = *ack
	return nil
}

func (r ackRepo) CompareAndSetStatus(_ context.Context, ack *domain.AlertAcknowledgement, from domain.AckStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.acks
	stored, ok := m[ack.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	r.s.record(restoreKey(m, ack.ID))
	stored.Status = ack.Status
	stored.AcknowledgedAt = ack.AcknowledgedAt
	stored.EscalatedTo = ack.EscalatedTo
	stored.EscalationReason = ack.EscalationReason
	stored.EscalatedAt = ack.EscalatedAt
	stored.UpdatedAt = ack.UpdatedAt
	m[ack.ID] = stored
	return true, nil
}

func (r ackRepo) GetByAlertAndUser(_ context.Context, alertID, userID string) (*domain.AlertAcknowledgement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, stored := range r.s.data.acks {
		if stored.AlertID == alertID && stored.UserID == userID {
			return &stored, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r ackRepo) ListByAlert(_ context.Context, alertID string) ([]domain.AlertAcknowledgement, error) {
	out := r.filter(func(a *domain.AlertAcknowledgement) bool { return a.AlertID == alertID })
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r ackRepo) ListOverdue(_ context.Context, now time.Time) ([]domain.AlertAcknowledgement, error) {
	out := r.filter(func(a *domain.AlertAcknowledgement) bool {
		return !a.Status.Closed() && !a.AckDeadline.After(now)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AckDeadline.Equal(out[j].AckDeadline) {
			return out[i].AckDeadline.Before(out[j].AckDeadline)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r ackRepo) ListOpenByTicket(_ context.Context, ticketID string) ([]domain.AlertAcknowledgement, error) {
	out := r.filter(func(a *domain.AlertAcknowledgement) bool {
		return a.TicketID == ticketID && !a.Status.Closed()
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r ackRepo) filter(keep func(*domain.AlertAcknowledgement) bool) []domain.AlertAcknowledgement {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AlertAcknowledgement
	for _, stored := range r.s.data.acks {
		if keep(&stored) {
			out = append(out, stored)
		}
	}
	return out
}
