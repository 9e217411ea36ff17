package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-service/internal/api/dto"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/service"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// ConflictsHandler exposes conflict review endpoints.
type ConflictsHandler struct {
	service *service.ConflictService
}

// NewConflictsHandler constructs handler.
func NewConflictsHandler(conflictService *service.ConflictService) *ConflictsHandler {
	return &ConflictsHandler{service: conflictService}
}

// ListConflicts GET /tickets/:id/conflicts.
func (h *ConflictsHandler) ListConflicts(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	conflicts, err := h.service.ListConflicts(c.UserContext(), principal.User.OrganizationID, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ConflictResponse, 0, len(conflicts))
	for i := range conflicts {
		items = append(items, conflictResponse(&conflicts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ResolveConflict POST /conflicts/:id/resolve.
func (h *ConflictsHandler) ResolveConflict(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ResolveConflictRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.service.ResolveConflict(c.UserContext(), principal.User.OrganizationID, c.Params("id"), service.ResolveInput{
		ResolvedBy: principal.User.ID,
		Notes:      req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func conflictResponse(c *domain.Conflict) dto.ConflictResponse {
	return dto.ConflictResponse{
		ID:                 c.ID,
		TicketID:           c.TicketID,
		Kind:               c.Kind,
		Reason:             c.Reason,
		UtilityCodes:       c.UtilityCodes,
		EvidenceRefs:       c.EvidenceRefs,
		DetectedAt:         c.DetectedAt,
		ConflictResolvedAt: c.ConflictResolvedAt,
		ResolvedBy:         c.ResolvedBy,
		ResolutionNotes:    c.ResolutionNotes,
	}
}
