package domain

import "time"

// FacilityKind classifies what a utility owns underground.
type FacilityKind string

const (
	FacilityGas      FacilityKind = "GAS"
	FacilityElectric FacilityKind = "ELECTRIC"
	FacilityTelecom  FacilityKind = "TELECOM"
	FacilityWater    FacilityKind = "WATER"
	FacilitySewer    FacilityKind = "SEWER"
	FacilityOther    FacilityKind = "OTHER"
)

func (f FacilityKind) Valid() bool {
	switch f {
	case FacilityGas, FacilityElectric, FacilityTelecom, FacilityWater, FacilitySewer, FacilityOther:
		return true
	}
	return false
}

// MarkColor is the APWA uniform colour code painted on site.
type MarkColor string

const (
	MarkRed    MarkColor = "RED"
	MarkYellow MarkColor = "YELLOW"
	MarkOrange MarkColor = "ORANGE"
	MarkBlue   MarkColor = "BLUE"
	MarkGreen  MarkColor = "GREEN"
	MarkPink   MarkColor = "PINK"
)

// Color returns the APWA colour a facility kind is marked with. OTHER has
// no reserved colour.
func (f FacilityKind) Color() (MarkColor, bool) {
	switch f {
	case FacilityGas:
		return MarkYellow, true
	case FacilityElectric:
		return MarkRed, true
	case FacilityTelecom:
		return MarkOrange, true
	case FacilityWater:
		return MarkBlue, true
	case FacilitySewer:
		return MarkGreen, true
	case FacilityOther:
		return "", false
	}
	return "", false
}

// ResponseType is the positive-response code a utility returns.
type ResponseType string

const (
	ResponseNoFacilities    ResponseType = "NO_FACILITIES"
	ResponseNotInArea       ResponseType = "NOT_IN_AREA"
	ResponseMarked          ResponseType = "MARKED"
	ResponsePartiallyMarked ResponseType = "PARTIALLY_MARKED"
	ResponseOngoing         ResponseType = "ONGOING"
	ResponseConflict        ResponseType = "CONFLICT"
)

func (r ResponseType) Valid() bool {
	switch r {
	case ResponseNoFacilities, ResponseNotInArea, ResponseMarked, ResponsePartiallyMarked,
		ResponseOngoing, ResponseConflict:
		return true
	}
	return false
}

// Status maps a response code to the aggregate response status.
func (r ResponseType) Status() ResponseStatus {
	switch r {
	case ResponseNoFacilities, ResponseNotInArea:
		return ResponseStatusClear
	case ResponseMarked:
		return ResponseStatusMarked
	case ResponsePartiallyMarked, ResponseOngoing:
		return ResponseStatusIncomplete
	case ResponseConflict:
		return ResponseStatusConflict
	}
	return ResponseStatusPending
}

// ResponseStatus is the per-utility state used by the lifecycle.
type ResponseStatus string

const (
	ResponseStatusPending    ResponseStatus = "PENDING"
	ResponseStatusClear      ResponseStatus = "CLEAR"
	ResponseStatusMarked     ResponseStatus = "MARKED"
	ResponseStatusIncomplete ResponseStatus = "INCOMPLETE"
	ResponseStatusConflict   ResponseStatus = "CONFLICT"
)

// Responded reports whether the utility has replied at all.
func (s ResponseStatus) Responded() bool {
	return s != ResponseStatusPending
}

// Satisfied reports whether the reply clears the utility for digging.
func (s ResponseStatus) Satisfied() bool {
	switch s {
	case ResponseStatusClear, ResponseStatusMarked:
		return true
	case ResponseStatusPending, ResponseStatusIncomplete, ResponseStatusConflict:
		return false
	}
	return false
}

// VerificationResult is the outcome of a crew checking marks on site.
type VerificationResult string

const (
	VerificationMatch    VerificationResult = "MATCH"
	VerificationMismatch VerificationResult = "MISMATCH"
)

// Evidence holds references supporting a response or verification.
type Evidence struct {
	Notes      string      `json:"notes,omitempty"`
	PhotoRefs  []string    `json:"photo_refs,omitempty"`
	MarkColors []MarkColor `json:"mark_colors,omitempty"`
	Point      *GeoPoint   `json:"point,omitempty"`
}

// HasColor reports whether c was observed.
func (e Evidence) HasColor(c MarkColor) bool {
	for _, observed := range e.MarkColors {
		if observed == c {
			return true
		}
	}
	return false
}

// UtilityResponse is one utility's reply to a ticket.
type UtilityResponse struct {
	ID                     string
	TicketID               string
	UtilityCode            string
	UtilityName            string
	Facility               FacilityKind
	ResponseType           *ResponseType
	Status                 ResponseStatus
	ResponseWindowOpensAt  time.Time
	ResponseWindowClosesAt time.Time
	RespondedAt            *time.Time
	MarkedAt               *time.Time
	Evidence               Evidence
	VerifiedAt             *time.Time
	VerifiedBy             *string
	VerificationResult     *VerificationResult
	VerificationEvidence   Evidence
	Revision               int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Overdue reports whether the utility has not replied by its window close.
func (r *UtilityResponse) Overdue(now time.Time) bool {
	return r.Status == ResponseStatusPending && !now.Before(r.ResponseWindowClosesAt)
}
