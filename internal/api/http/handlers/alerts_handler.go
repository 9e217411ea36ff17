package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-service/internal/api/dto"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/service"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// AlertsHandler exposes delivery, acknowledgement and due-alert endpoints.
type AlertsHandler struct {
	alerts *service.AlertService
	acks   *service.AckService
}

// NewAlertsHandler constructs handler.
func NewAlertsHandler(alertService *service.AlertService, ackService *service.AckService) *AlertsHandler {
	return &AlertsHandler{alerts: alertService, acks: ackService}
}

// Acknowledge POST /alerts/:id/ack.
func (h *AlertsHandler) Acknowledge(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	req := dto.AcknowledgeRequest{Action: domain.AckActionAcknowledge}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	row, err := h.acks.AcknowledgeAlert(c.UserContext(), c.Params("id"), principal.User.ID, req.Action)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ackResponse(row)})
}

// RecordDelivery POST /alerts/:id/delivery.
func (h *AlertsHandler) RecordDelivery(c *fiber.Ctx) error {
	var req dto.DeliveryCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id is required", nil)
	}
	update, err := h.acks.RecordDelivery(c.UserContext(), c.Params("id"), req.UserID, req.Status)
	if err != nil {
		return err
	}
	data := fiber.Map{"alert": alertResponse(update.Alert)}
	if update.Acknowledgement != nil {
		data["acknowledgement"] = ackResponse(update.Acknowledgement)
	}
	return c.JSON(fiber.Map{"data": data})
}

// ListAcknowledgements GET /alerts/:id/acks.
func (h *AlertsHandler) ListAcknowledgements(c *fiber.Ctx) error {
	rows, err := h.acks.ListAcknowledgements(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AcknowledgementResponse, 0, len(rows))
	for i := range rows {
		items = append(items, ackResponse(&rows[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListDue GET /alerts/due.
func (h *AlertsHandler) ListDue(c *fiber.Ctx) error {
	due, err := h.alerts.ListDueAlerts(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.DueAlertResponse, 0, len(due))
	for _, d := range due {
		items = append(items, dto.DueAlertResponse{
			TicketID:       d.TicketID,
			OrganizationID: d.OrganizationID,
			AlertType:      d.Rule.AlertType,
			Priority:       d.Rule.Priority,
			Rule:           d.Rule.Name,
			DedupKey:       d.DedupKey,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func alertResponse(a *domain.TicketAlert) dto.AlertResponse {
	return dto.AlertResponse{
		ID:            a.ID,
		TicketID:      a.TicketID,
		AlertType:     a.AlertType,
		Priority:      a.Priority,
		Channels:      a.Channels,
		Subject:       a.Subject,
		Body:          a.Body,
		Recipients:    a.Recipients,
		RequiresAck:   a.RequiresAck,
		Attempts:      a.Attempts,
		SentAt:        a.SentAt,
		DeliveredAt:   a.DeliveredAt,
		FailedAt:      a.FailedAt,
		FailureReason: a.FailureReason,
		CreatedAt:     a.CreatedAt,
	}
}

func ackResponse(r *domain.AlertAcknowledgement) dto.AcknowledgementResponse {
	return dto.AcknowledgementResponse{
		AlertID:        r.AlertID,
		UserID:         r.UserID,
		Status:         r.Status,
		AckDeadline:    r.AckDeadline,
		AcknowledgedAt: r.AcknowledgedAt,
		EscalatedTo:    r.EscalatedTo,
		EscalatedAt:    r.EscalatedAt,
	}
}
