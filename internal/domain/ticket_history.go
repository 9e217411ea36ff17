package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus       TicketChangeType = "STATUS_CHANGE"
	ChangeTypeResponse     TicketChangeType = "RESPONSE_CHANGE"
	ChangeTypeVerification TicketChangeType = "VERIFICATION"
	ChangeTypeConflict     TicketChangeType = "CONFLICT_DETECTED"
	ChangeTypeResolution   TicketChangeType = "CONFLICT_RESOLVED"
	ChangeTypeRenewal      TicketChangeType = "RENEWAL"
	ChangeTypeFlag         TicketChangeType = "FLAGGED"
)

// ActorType indicates who caused a change.
type ActorType string

const (
	ActorUser    ActorType = "USER"
	ActorUtility ActorType = "UTILITY"
	ActorSystem  ActorType = "SYSTEM"
)

// Actor identifies the origin of a change.
type Actor struct {
	Type ActorType
	ID   *string
}

// SystemActor is used by sweeps.
func SystemActor(name string) Actor {
	return Actor{Type: ActorSystem, ID: &name}
}

// UserActor wraps a user id.
func UserActor(userID string) Actor {
	return Actor{Type: ActorUser, ID: &userID}
}

// UtilityActor wraps a utility code.
func UtilityActor(code string) Actor {
	return Actor{Type: ActorUtility, ID: &code}
}

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
