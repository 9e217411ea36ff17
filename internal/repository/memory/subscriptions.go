package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

type subscriptionRepo struct{ s *Store }

func (r subscriptionRepo) Upsert(_ context.Context, sub *domain.AlertSubscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.subscriptions
	stored := *sub
	if existing, ok := m[sub.ID]; ok {
		stored.UserID = existing.UserID
		stored.OrganizationID = existing.OrganizationID
		stored.CreatedAt = existing.CreatedAt
	}
	stored.AlertTypes = slices.Clone(sub.AlertTypes)
	stored.Channels = slices.Clone(sub.Channels)
	r.s.record(restoreKey(m, sub.ID))
	m[sub.ID] = stored
	return nil
}

func (r subscriptionRepo) GetByID(_ context.Context, id string) (*domain.AlertSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.subscriptions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &stored, nil
}

func (r subscriptionRepo) ListByUser(_ context.Context, userID string) ([]domain.AlertSubscription, error) {
	out := r.filter(func(s *domain.AlertSubscription) bool { return s.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r subscriptionRepo) ListActiveByOrganization(_ context.Context, organizationID string) ([]domain.AlertSubscription, error) {
	out := r.filter(func(s *domain.AlertSubscription) bool { return s.OrganizationID == organizationID && s.Active })
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r subscriptionRepo) filter(keep func(*domain.AlertSubscription) bool) []domain.AlertSubscription {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AlertSubscription
	for _, stored := range r.s.data.subscriptions {
		if keep(&stored) {
			out = append(out, stored)
		}
	}
	return out
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.data.users
	for _, existing := range m {
		if existing.Email == user.Email {
			return errDuplicate("user email", user.Email)
		}
	}
	user.UpdatedAt = user.CreatedAt
	r.s.record(restoreKey(m, user.ID))
	m[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &stored, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, stored := range r.s.data.users {
		if stored.Email == email {
			return &stored, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r userRepo) ListByRole(_ context.Context, organizationID string, role domain.UserRole) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, stored := range r.s.data.users {
		if stored.OrganizationID == organizationID && stored.Role == role && stored.Active {
			out = append(out, stored)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
