package events

import (
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventResponseRecorded    EventType = "utility_response_recorded"
	EventConflictDetected    EventType = "conflict_detected"
	EventConflictResolved    EventType = "conflict_resolved"
	EventAlertEmitted        EventType = "alert_emitted"
	EventAlertFailed         EventType = "alert_failed"
	EventAlertEscalated      EventType = "alert_escalated"
	EventTicketFlagged       EventType = "ticket_flagged"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string            `json:"ticket_number"`
	Type         domain.TicketType `json:"type"`
	Jurisdiction string            `json:"jurisdiction"`
	Utilities    int               `json:"utilities"`
	RiskScore    int               `json:"risk_score"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
}

// ResponseRecordedPayload payload.
type ResponseRecordedPayload struct {
	UtilityCode string                `json:"utility_code"`
	Status      domain.ResponseStatus `json:"status"`
	Revision    int                   `json:"revision"`
}

// ConflictPayload is shared by conflict detection and resolution events.
type ConflictPayload struct {
	ConflictID string              `json:"conflict_id"`
	Kind       domain.ConflictKind `json:"kind"`
	Reason     string              `json:"reason,omitempty"`
}

// AlertPayload is shared by alert events.
type AlertPayload struct {
	AlertID    string               `json:"alert_id"`
	AlertType  domain.AlertType     `json:"alert_type"`
	Priority   domain.AlertPriority `json:"priority"`
	Recipients int                  `json:"recipients"`
	Attempts   int                  `json:"attempts,omitempty"`
	Reason     string               `json:"reason,omitempty"`
}

// TicketFlaggedPayload payload.
type TicketFlaggedPayload struct {
	Error string `json:"error"`
}
