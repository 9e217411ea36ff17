package domain

import "time"

// TicketStatus enumerates lifecycle states for locate tickets.
type TicketStatus string

const (
	TicketStatusReceived   TicketStatus = "RECEIVED"
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClear      TicketStatus = "CLEAR"
	TicketStatusConflict   TicketStatus = "CONFLICT"
	TicketStatusExpired    TicketStatus = "EXPIRED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// TicketStatuses lists every status in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusReceived,
	TicketStatusPending,
	TicketStatusInProgress,
	TicketStatusClear,
	TicketStatusConflict,
	TicketStatusExpired,
	TicketStatusCancelled,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusReceived, TicketStatusPending, TicketStatusInProgress,
		TicketStatusClear, TicketStatusConflict, TicketStatusExpired, TicketStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketStatusExpired, TicketStatusCancelled:
		return true
	case TicketStatusReceived, TicketStatusPending, TicketStatusInProgress,
		TicketStatusClear, TicketStatusConflict:
		return false
	}
	return false
}

// TicketType selects the statutory rule set used for deadlines.
type TicketType string

const (
	TicketTypeStandard     TicketType = "STANDARD"
	TicketTypeEmergency    TicketType = "EMERGENCY"
	TicketTypeLargeProject TicketType = "LARGE_PROJECT"
)

func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeStandard, TicketTypeEmergency, TicketTypeLargeProject:
		return true
	}
	return false
}

// WorkType describes the excavation method declared on the ticket.
type WorkType string

const (
	WorkTypeBoring      WorkType = "BORING"
	WorkTypeTrenching   WorkType = "TRENCHING"
	WorkTypeExcavation  WorkType = "EXCAVATION"
	WorkTypeDemolition  WorkType = "DEMOLITION"
	WorkTypeGrading     WorkType = "GRADING"
	WorkTypePoleSetting WorkType = "POLE_SETTING"
	WorkTypeFencing     WorkType = "FENCING"
	WorkTypeLandscaping WorkType = "LANDSCAPING"
	WorkTypeOther       WorkType = "OTHER"
)

func (w WorkType) Valid() bool {
	switch w {
	case WorkTypeBoring, WorkTypeTrenching, WorkTypeExcavation, WorkTypeDemolition,
		WorkTypeGrading, WorkTypePoleSetting, WorkTypeFencing, WorkTypeLandscaping, WorkTypeOther:
		return true
	}
	return false
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DigSite is where excavation will happen.
type DigSite struct {
	Address string
	Point   *GeoPoint
}

// Deadlines are stamped once at creation and never recomputed.
type Deadlines struct {
	LegalDigDate           time.Time
	ExpiresAt              time.Time
	UpdateByDate           *time.Time
	ResponseWindowOpensAt  time.Time
	ResponseWindowClosesAt time.Time
}

// Ticket is the aggregate for a locate request.
type Ticket struct {
	ID                 string
	TicketNumber       string
	OrganizationID     string
	ProjectID          *string
	CreatedBy          *string
	Jurisdiction       string
	Type               TicketType
	WorkType           WorkType
	Site               DigSite
	Status             TicketStatus
	LegalDigDate       time.Time
	ExpiresAt          time.Time
	UpdateByDate       *time.Time
	RiskScore          int
	TotalUtilities     int
	RespondedUtilities int
	AlertCount         int
	LastAlertSentAt    *time.Time
	ParentTicketID     *string
	ProcessingError    *string
	FlaggedAt          *time.Time
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time
}

// Flagged reports whether the ticket awaits manual review.
func (t *Ticket) Flagged() bool {
	return t.FlaggedAt != nil
}
