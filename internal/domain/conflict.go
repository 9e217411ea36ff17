package domain

import "time"

// ConflictKind names the rule that detected a conflict.
type ConflictKind string

const (
	ConflictUtilityReported      ConflictKind = "UTILITY_REPORTED"
	ConflictContradictoryMarks   ConflictKind = "CONTRADICTORY_MARKS"
	ConflictVerificationMismatch ConflictKind = "FIELD_VERIFICATION_MISMATCH"
)

// Conflict records contradictory or unverifiable locate information that
// needs a human decision.
type Conflict struct {
	ID                 string
	TicketID           string
	Kind               ConflictKind
	Fingerprint        string
	Reason             string
	UtilityCodes       []string
	EvidenceRefs       []string
	DetectedAt         time.Time
	ConflictResolvedAt *time.Time
	ResolvedBy         *string
	ResolutionNotes    *string
}

// Open reports whether the conflict still blocks the CLEAR path.
func (c *Conflict) Open() bool {
	return c.ConflictResolvedAt == nil
}
