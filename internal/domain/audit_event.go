package domain

import "time"

// AuditEntity names the record an audit event is about.
type AuditEntity string

const (
	AuditEntityAlert           AuditEntity = "ALERT"
	AuditEntityAcknowledgement AuditEntity = "ACKNOWLEDGEMENT"
)

// AuditEvent is an append-only log row for alert emission, delivery and
// acknowledgement activity.
type AuditEvent struct {
	ID         string
	EntityType AuditEntity
	EntityID   string
	TicketID   string
	Action     string
	ActorType  ActorType
	ActorID    *string
	Payload    map[string]any
	CreatedAt  time.Time
}
