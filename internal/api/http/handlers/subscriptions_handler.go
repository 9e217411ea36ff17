package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-service/internal/api/dto"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/service"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// SubscriptionsHandler manages the caller's alert subscriptions.
type SubscriptionsHandler struct {
	service *service.SubscriptionService
}

// NewSubscriptionsHandler constructs handler.
func NewSubscriptionsHandler(subscriptionService *service.SubscriptionService) *SubscriptionsHandler {
	return &SubscriptionsHandler{service: subscriptionService}
}

// Create POST /subscriptions.
func (h *SubscriptionsHandler) Create(c *fiber.Ctx) error {
	return h.upsert(c, "", http.StatusCreated)
}

// Replace PUT /subscriptions/:id.
func (h *SubscriptionsHandler) Replace(c *fiber.Ctx) error {
	return h.upsert(c, c.Params("id"), http.StatusOK)
}

// List GET /subscriptions.
func (h *SubscriptionsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	subs, err := h.service.ListSubscriptions(c.UserContext(), principal.User.ID)
	if err != nil {
		return err
	}
	items := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		items = append(items, subscriptionResponse(&subs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *SubscriptionsHandler) upsert(c *fiber.Ctx, id string, status int) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	sub, err := h.service.UpsertSubscription(c.UserContext(), principal.User, service.SubscriptionInput{
		ID:         id,
		Scope:      req.Scope,
		ProjectID:  req.ProjectID,
		Center:     req.Center,
		RadiusKm:   req.RadiusKm,
		AlertTypes: req.AlertTypes,
		Channels:   req.Channels,
		Contacts:   req.Contacts,
		QuietMode:  req.QuietMode,
		Active:     active,
	})
	if err != nil {
		return err
	}
	return c.Status(status).JSON(fiber.Map{"data": subscriptionResponse(sub)})
}

func subscriptionResponse(s *domain.AlertSubscription) dto.SubscriptionResponse {
	return dto.SubscriptionResponse{
		ID:         s.ID,
		UserID:     s.UserID,
		Scope:      s.Scope,
		ProjectID:  s.ProjectID,
		Center:     s.Center,
		RadiusKm:   s.RadiusKm,
		AlertTypes: s.AlertTypes,
		Channels:   s.Channels,
		Contacts:   s.Contacts,
		QuietMode:  s.QuietMode,
		Active:     s.Active,
		UpdatedAt:  s.UpdatedAt,
	}
}
