package domain

import "time"

// AckStatus tracks one recipient's handling of an alert.
type AckStatus string

const (
	AckStatusSent         AckStatus = "SENT"
	AckStatusDelivered    AckStatus = "DELIVERED"
	AckStatusOpened       AckStatus = "OPENED"
	AckStatusAcknowledged AckStatus = "ACKNOWLEDGED"
	AckStatusEscalated    AckStatus = "ESCALATED"
	AckStatusSuperseded   AckStatus = "SUPERSEDED"
)

// Rank orders the forward-only delivery progression.
func (s AckStatus) Rank() int {
	switch s {
	case AckStatusSent:
		return 0
	case AckStatusDelivered:
		return 1
	case AckStatusOpened:
		return 2
	case AckStatusAcknowledged, AckStatusEscalated, AckStatusSuperseded:
		return 3
	}
	return -1
}

// Closed reports whether the row no longer takes part in escalation.
func (s AckStatus) Closed() bool {
	return s.Rank() >= 3
}

// OpenAckStatuses are the statuses the escalation sweep looks at.
var OpenAckStatuses = []AckStatus{AckStatusSent, AckStatusDelivered, AckStatusOpened}

// AckAction is what a recipient does with an alert.
type AckAction string

const (
	AckActionOpen        AckAction = "OPEN"
	AckActionAcknowledge AckAction = "ACKNOWLEDGE"
)

func (a AckAction) Valid() bool {
	switch a {
	case AckActionOpen, AckActionAcknowledge:
		return true
	}
	return false
}

// AlertAcknowledgement is the per-recipient delivery/ack record.
type AlertAcknowledgement struct {
	ID               string
	AlertID          string
	TicketID         string
	UserID           string
	Status           AckStatus
	AckDeadline      time.Time
	AcknowledgedAt   *time.Time
	EscalatedTo      *string
	EscalationReason *string
	EscalatedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
