package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spec-kit/locate-service/internal/domain"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// SubscriptionService manages users' alert preferences.
type SubscriptionService struct {
	base
}

// NewSubscriptionService constructs the service.
func NewSubscriptionService(deps Dependencies) *SubscriptionService {
	return &SubscriptionService{base: newBase(deps)}
}

// SubscriptionInput describes a new or replaced subscription. An empty ID
// creates one.
type SubscriptionInput struct {
	ID         string
	Scope      domain.SubscriptionScope
	ProjectID  *string
	Center     *domain.GeoPoint
	RadiusKm   float64
	AlertTypes []domain.AlertType
	Channels   []domain.Channel
	Contacts   domain.ContactEndpoints
	QuietMode  bool
	Active     bool
}

// UpsertSubscription validates and stores a subscription owned by user.
func (s *SubscriptionService) UpsertSubscription(ctx context.Context, user *domain.User, input SubscriptionInput) (*domain.AlertSubscription, error) {
	if err := validateSubscription(input); err != nil {
		return nil, err
	}
	now := s.now()
	sub := &domain.AlertSubscription{
		ID:             input.ID,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Scope:          input.Scope,
		ProjectID:      input.ProjectID,
		Center:         input.Center,
		RadiusKm:       input.RadiusKm,
		AlertTypes:     input.AlertTypes,
		Channels:       input.Channels,
		Contacts:       input.Contacts,
		QuietMode:      input.QuietMode,
		Active:         input.Active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	} else {
		existing, err := s.store.Subscriptions().GetByID(ctx, sub.ID)
		if err != nil {
			return nil, notFound(err, "subscription", map[string]any{"subscription_id": sub.ID})
		}
		if existing.UserID != user.ID && user.Role != domain.RoleAdmin {
			return nil, apperrors.NewForbidden("subscription belongs to another user")
		}
		sub.UserID = existing.UserID
		sub.OrganizationID = existing.OrganizationID
		sub.CreatedAt = existing.CreatedAt
	}
	if sub.Contacts.Email == "" && sub.UserID == user.ID {
		sub.Contacts.Email = user.Email
	}
	if sub.Contacts.Phone == "" && sub.UserID == user.ID {
		sub.Contacts.Phone = user.Phone
	}
	if err := s.store.Subscriptions().Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("store subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns the subscriptions of a user.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, userID string) ([]domain.AlertSubscription, error) {
	return s.store.Subscriptions().ListByUser(ctx, userID)
}

func validateSubscription(input SubscriptionInput) error {
	details := map[string]any{}
	if !input.Scope.Valid() {
		details["scope"] = "unknown scope"
	}
	if input.Scope == domain.ScopeProject && (input.ProjectID == nil || *input.ProjectID == "") {
		details["project_id"] = "required for PROJECT scope"
	}
	if input.Center != nil {
		if input.RadiusKm <= 0 {
			details["radius_km"] = "must be positive with a centre"
		}
		if input.Center.Lat < -90 || input.Center.Lat > 90 || input.Center.Lng < -180 || input.Center.Lng > 180 {
			details["center"] = "out of range"
		}
	}
	if len(input.AlertTypes) == 0 {
		details["alert_types"] = "at least one required"
	}
	for _, t := range input.AlertTypes {
		if !t.Valid() {
			details["alert_types"] = fmt.Sprintf("unknown alert type %q", t)
		}
	}
	if len(input.Channels) == 0 {
		details["channels"] = "at least one required"
	}
	for _, c := range input.Channels {
		if !c.Valid() {
			details["channels"] = fmt.Sprintf("unknown channel %q", c)
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid subscription", details)
	}
	return nil
}
