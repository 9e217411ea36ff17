package dto

import (
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// AcknowledgeRequest payload. Action defaults to ACKNOWLEDGE.
type AcknowledgeRequest struct {
	Action domain.AckAction `json:"action"`
}

// DeliveryCallbackRequest is a transport's delivery receipt.
type DeliveryCallbackRequest struct {
	UserID string           `json:"user_id"`
	Status domain.AckStatus `json:"status"`
}

// AlertResponse is the public shape of an emitted alert.
type AlertResponse struct {
	ID            string               `json:"id"`
	TicketID      string               `json:"ticket_id"`
	AlertType     domain.AlertType     `json:"alert_type"`
	Priority      domain.AlertPriority `json:"priority"`
	Channels      []domain.Channel     `json:"channels"`
	Subject       string               `json:"subject"`
	Body          string               `json:"body"`
	Recipients    []string             `json:"recipients"`
	RequiresAck   bool                 `json:"requires_ack"`
	Attempts      int                  `json:"attempts"`
	SentAt        *time.Time           `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time           `json:"delivered_at,omitempty"`
	FailedAt      *time.Time           `json:"failed_at,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// AcknowledgementResponse is one recipient's ack row.
type AcknowledgementResponse struct {
	AlertID        string           `json:"alert_id"`
	UserID         string           `json:"user_id"`
	Status         domain.AckStatus `json:"status"`
	AckDeadline    time.Time        `json:"ack_deadline"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	EscalatedTo    *string          `json:"escalated_to,omitempty"`
	EscalatedAt    *time.Time       `json:"escalated_at,omitempty"`
}

// DueAlertResponse is an alert the next sweep would emit.
type DueAlertResponse struct {
	TicketID       string               `json:"ticket_id,omitempty"`
	OrganizationID string               `json:"organization_id"`
	AlertType      domain.AlertType     `json:"alert_type"`
	Priority       domain.AlertPriority `json:"priority"`
	Rule           string               `json:"rule"`
	DedupKey       string               `json:"dedup_key"`
}

// SubscriptionRequest creates or replaces a subscription.
type SubscriptionRequest struct {
	Scope      domain.SubscriptionScope `json:"scope"`
	ProjectID  *string                  `json:"project_id"`
	Center     *domain.GeoPoint         `json:"center"`
	RadiusKm   float64                  `json:"radius_km"`
	AlertTypes []domain.AlertType       `json:"alert_types"`
	Channels   []domain.Channel         `json:"channels"`
	Contacts   domain.ContactEndpoints  `json:"contacts"`
	QuietMode  bool                     `json:"quiet_mode"`
	Active     *bool                    `json:"active"`
}

// SubscriptionResponse is the public shape of a subscription.
type SubscriptionResponse struct {
	ID         string                   `json:"id"`
	UserID     string                   `json:"user_id"`
	Scope      domain.SubscriptionScope `json:"scope"`
	ProjectID  *string                  `json:"project_id,omitempty"`
	Center     *domain.GeoPoint         `json:"center,omitempty"`
	RadiusKm   float64                  `json:"radius_km,omitempty"`
	AlertTypes []domain.AlertType       `json:"alert_types"`
	Channels   []domain.Channel         `json:"channels"`
	Contacts   domain.ContactEndpoints  `json:"contacts"`
	QuietMode  bool                     `json:"quiet_mode"`
	Active     bool                     `json:"active"`
	UpdatedAt  time.Time                `json:"updated_at"`
}
