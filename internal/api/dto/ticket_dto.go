package dto

import (
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// UtilityRequest names one utility notified for a ticket.
type UtilityRequest struct {
	Code     string              `json:"code"`
	Name     string              `json:"name"`
	Facility domain.FacilityKind `json:"facility"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TicketNumber string            `json:"ticket_number"`
	ProjectID    *string           `json:"project_id"`
	Jurisdiction string            `json:"jurisdiction"`
	Type         domain.TicketType `json:"type"`
	WorkType     domain.WorkType   `json:"work_type"`
	Address      string            `json:"address"`
	Point        *domain.GeoPoint  `json:"point"`
	Utilities    []UtilityRequest  `json:"utilities"`
}

// ResponseRequest is a utility's positive response.
type ResponseRequest struct {
	UtilityCode  string              `json:"utility_code"`
	ResponseType domain.ResponseType `json:"response_type"`
	Evidence     domain.Evidence     `json:"evidence"`
}

// VerificationRequest is a crew's on-site check.
type VerificationRequest struct {
	UtilityCode string                    `json:"utility_code"`
	Result      domain.VerificationResult `json:"result"`
	Evidence    domain.Evidence           `json:"evidence"`
}

// CancelRequest payload.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ResolveConflictRequest payload.
type ResolveConflictRequest struct {
	Notes string `json:"notes"`
}

// TicketResponse is the public shape of a ticket.
type TicketResponse struct {
	ID                 string              `json:"id"`
	TicketNumber       string              `json:"ticket_number"`
	OrganizationID     string              `json:"organization_id"`
	ProjectID          *string             `json:"project_id,omitempty"`
	Jurisdiction       string              `json:"jurisdiction"`
	Type               domain.TicketType   `json:"type"`
	WorkType           domain.WorkType     `json:"work_type"`
	Address            string              `json:"address"`
	Point              *domain.GeoPoint    `json:"point,omitempty"`
	Status             domain.TicketStatus `json:"status"`
	LegalDigDate       time.Time           `json:"legal_dig_date"`
	ExpiresAt          time.Time           `json:"expires_at"`
	UpdateByDate       *time.Time          `json:"update_by_date,omitempty"`
	RiskScore          int                 `json:"risk_score"`
	TotalUtilities     int                 `json:"total_utilities"`
	RespondedUtilities int                 `json:"responded_utilities"`
	AlertCount         int                 `json:"alert_count"`
	ParentTicketID     *string             `json:"parent_ticket_id,omitempty"`
	ProcessingError    *string             `json:"processing_error,omitempty"`
	FlaggedAt          *time.Time          `json:"flagged_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	ClosedAt           *time.Time          `json:"closed_at,omitempty"`
}

// UtilityResponseResponse is one utility's reply.
type UtilityResponseResponse struct {
	UtilityCode            string                     `json:"utility_code"`
	UtilityName            string                     `json:"utility_name"`
	Facility               domain.FacilityKind        `json:"facility"`
	ResponseType           *domain.ResponseType       `json:"response_type,omitempty"`
	Status                 domain.ResponseStatus      `json:"status"`
	ResponseWindowClosesAt time.Time                  `json:"response_window_closes_at"`
	RespondedAt            *time.Time                 `json:"responded_at,omitempty"`
	Evidence               domain.Evidence            `json:"evidence"`
	VerificationResult     *domain.VerificationResult `json:"verification_result,omitempty"`
	VerifiedAt             *time.Time                 `json:"verified_at,omitempty"`
	Revision               int                        `json:"revision"`
}

// ConflictResponse is a recorded conflict.
type ConflictResponse struct {
	ID                 string              `json:"id"`
	TicketID           string              `json:"ticket_id"`
	Kind               domain.ConflictKind `json:"kind"`
	Reason             string              `json:"reason"`
	UtilityCodes       []string            `json:"utility_codes"`
	EvidenceRefs       []string            `json:"evidence_refs,omitempty"`
	DetectedAt         time.Time           `json:"detected_at"`
	ConflictResolvedAt *time.Time          `json:"conflict_resolved_at,omitempty"`
	ResolvedBy         *string             `json:"resolved_by,omitempty"`
	ResolutionNotes    *string             `json:"resolution_notes,omitempty"`
}

// TicketStatusResponse is the status view of a ticket.
type TicketStatusResponse struct {
	Ticket        TicketResponse            `json:"ticket"`
	Responses     []UtilityResponseResponse `json:"responses"`
	OpenConflicts []ConflictResponse        `json:"open_conflicts"`
}

// HistoryEntryResponse is one audit trail entry.
type HistoryEntryResponse struct {
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.ActorType        `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id,omitempty"`
	OldValue      map[string]any          `json:"old_value,omitempty"`
	NewValue      map[string]any          `json:"new_value,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}
