package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-service/internal/api/dto"
	"github.com/spec-kit/locate-service/internal/auth"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/service"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// TicketsHandler manages locate ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	utilities := make([]service.UtilityInput, 0, len(req.Utilities))
	for _, u := range req.Utilities {
		utilities = append(utilities, service.UtilityInput{Code: u.Code, Name: u.Name, Facility: u.Facility})
	}
	createdBy := principal.User.ID
	ticket, err := h.service.CreateTicket(c.UserContext(), service.TicketCreateInput{
		TicketNumber:   req.TicketNumber,
		OrganizationID: principal.User.OrganizationID,
		ProjectID:      req.ProjectID,
		CreatedBy:      &createdBy,
		Jurisdiction:   req.Jurisdiction,
		Type:           req.Type,
		WorkType:       req.WorkType,
		Address:        req.Address,
		Point:          req.Point,
		Utilities:      utilities,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicketStatus GET /tickets/:id.
func (h *TicketsHandler) GetTicketStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	view, err := h.service.GetTicketStatus(c.UserContext(), principal.User.OrganizationID, c.Params("id"))
	if err != nil {
		return err
	}
	out := dto.TicketStatusResponse{
		Ticket:        ticketResponse(view.Ticket),
		Responses:     make([]dto.UtilityResponseResponse, 0, len(view.Responses)),
		OpenConflicts: make([]dto.ConflictResponse, 0, len(view.OpenConflicts)),
	}
	for i := range view.Responses {
		out.Responses = append(out.Responses, utilityResponse(&view.Responses[i]))
	}
	for i := range view.OpenConflicts {
		out.OpenConflicts = append(out.OpenConflicts, conflictResponse(&view.OpenConflicts[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), principal.User.OrganizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// RecordResponse POST /tickets/:id/responses.
func (h *TicketsHandler) RecordResponse(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	out, err := h.service.RecordUtilityResponse(c.UserContext(), principal.User.OrganizationID, c.Params("id"), service.ResponseInput{
		UtilityCode:  req.UtilityCode,
		ResponseType: req.ResponseType,
		Evidence:     req.Evidence,
	})
	if err != nil {
		return err
	}
	data := fiber.Map{
		"ticket":   ticketResponse(out.Ticket),
		"response": utilityResponse(out.Response),
	}
	if out.Alert != nil {
		data["alert"] = alertResponse(out.Alert)
	}
	return c.JSON(fiber.Map{"data": data})
}

// RecordVerification POST /tickets/:id/verifications.
func (h *TicketsHandler) RecordVerification(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.VerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.RecordFieldVerification(c.UserContext(), principal.User.OrganizationID, c.Params("id"), service.VerificationInput{
		UtilityCode: req.UtilityCode,
		VerifiedBy:  principal.User.ID,
		Result:      req.Result,
		Evidence:    req.Evidence,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CancelTicket POST /tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.service.CancelTicket(c.UserContext(), principal.User.OrganizationID, c.Params("id"), principal.User.ID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CreateRenewal POST /tickets/:id/renewals.
func (h *TicketsHandler) CreateRenewal(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.CreateRenewal(c.UserContext(), principal.User.OrganizationID, c.Params("id"), principal.User.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListFlagged GET /tickets/flagged.
func (h *TicketsHandler) ListFlagged(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListFlagged(c.UserContext(), principal.User.OrganizationID)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ClearFlag POST /tickets/:id/flag/clear.
func (h *TicketsHandler) ClearFlag(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.ClearFlag(c.UserContext(), principal.User.OrganizationID, c.Params("id"), principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal, nil
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                 t.ID,
		TicketNumber:       t.TicketNumber,
		OrganizationID:     t.OrganizationID,
		ProjectID:          t.ProjectID,
		Jurisdiction:       t.Jurisdiction,
		Type:               t.Type,
		WorkType:           t.WorkType,
		Address:            t.Site.Address,
		Point:              t.Site.Point,
		Status:             t.Status,
		LegalDigDate:       t.LegalDigDate,
		ExpiresAt:          t.ExpiresAt,
		UpdateByDate:       t.UpdateByDate,
		RiskScore:          t.RiskScore,
		TotalUtilities:     t.TotalUtilities,
		RespondedUtilities: t.RespondedUtilities,
		AlertCount:         t.AlertCount,
		ParentTicketID:     t.ParentTicketID,
		ProcessingError:    t.ProcessingError,
		FlaggedAt:          t.FlaggedAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		ClosedAt:           t.ClosedAt,
	}
}

func utilityResponse(r *domain.UtilityResponse) dto.UtilityResponseResponse {
	return dto.UtilityResponseResponse{
		UtilityCode:            r.UtilityCode,
		UtilityName:            r.UtilityName,
		Facility:               r.Facility,
		ResponseType:           r.ResponseType,
		Status:                 r.Status,
		ResponseWindowClosesAt: r.ResponseWindowClosesAt,
		RespondedAt:            r.RespondedAt,
		Evidence:               r.Evidence,
		VerificationResult:     r.VerificationResult,
		VerifiedAt:             r.VerifiedAt,
		Revision:               r.Revision,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.HistoryEntryResponse {
	out := make([]dto.HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.HistoryEntryResponse{
			ChangeType:    e.ChangeType,
			ChangedByType: e.ChangedByType,
			ChangedByID:   e.ChangedByID,
			OldValue:      e.OldValue,
			NewValue:      e.NewValue,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}
