// Package risk computes the composite risk score of a locate ticket.
//
// The score is a sum of independent, documented components, each
// non-increasing in time remaining, clamped to 0..100:
//
//	utilities   gas 20, electric 15, any other facility 5; summed over
//	            distinct kinds and capped at 30
//	work type   boring 20, trenching 18, excavation 15, demolition 15,
//	            pole setting 12, grading 10, other 8, fencing 6,
//	            landscaping 4
//	urgency     time to expires_at: past 25, <=4h 22, <=24h 18,
//	            <=48h 12, <=7d 6, otherwise 0
//	dig window  5 when a utility is still pending within 24h of the
//	            legal dig date
//	overdue     15 x fraction of utilities pending past their window
//	conflict    30 while a conflict is open
//
// Without a conflict the components sum to at most 95, so an open conflict
// always raises the stored score.
package risk

import (
	"math"
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

const (
	maxScore        = 100
	utilityCap      = 30
	digWindowWeight = 5
	overdueWeight   = 15
	conflictPenalty = 30
)

// Input is the snapshot the score is computed from.
type Input struct {
	WorkType     domain.WorkType
	LegalDigDate time.Time
	ExpiresAt    time.Time
	Responses    []domain.UtilityResponse
	ConflictOpen bool
}

// InputFor assembles an Input from stored rows.
func InputFor(ticket *domain.Ticket, responses []domain.UtilityResponse, openConflicts int) Input {
	return Input{
		WorkType:     ticket.WorkType,
		LegalDigDate: ticket.LegalDigDate,
		ExpiresAt:    ticket.ExpiresAt,
		Responses:    responses,
		ConflictOpen: openConflicts > 0,
	}
}

// Score returns the risk score of in at now. It is pure.
func Score(in Input, now time.Time) int {
	total := utilityComponent(in.Responses) +
		workTypeComponent(in.WorkType) +
		urgencyComponent(in.ExpiresAt.Sub(now)) +
		digWindowComponent(in, now) +
		overdueComponent(in.Responses, now)
	if in.ConflictOpen {
		total += conflictPenalty
	}
	if total > maxScore {
		return maxScore
	}
	if total < 0 {
		return 0
	}
	return total
}

func utilityComponent(responses []domain.UtilityResponse) int {
	seen := map[domain.FacilityKind]bool{}
	sum := 0
	for _, r := range responses {
		if seen[r.Facility] {
			continue
		}
		seen[r.Facility] = true
		sum += facilityWeight(r.Facility)
	}
	if sum > utilityCap {
		return utilityCap
	}
	return sum
}

func facilityWeight(kind domain.FacilityKind) int {
	switch kind {
	case domain.FacilityGas:
		return 20
	case domain.FacilityElectric:
		return 15
	case domain.FacilityTelecom, domain.FacilityWater, domain.FacilitySewer, domain.FacilityOther:
		return 5
	}
	return 5
}

func workTypeComponent(w domain.WorkType) int {
	switch w {
	case domain.WorkTypeBoring:
		return 20
	case domain.WorkTypeTrenching:
		return 18
	case domain.WorkTypeExcavation, domain.WorkTypeDemolition:
		return 15
	case domain.WorkTypePoleSetting:
		return 12
	case domain.WorkTypeGrading:
		return 10
	case domain.WorkTypeOther:
		return 8
	case domain.WorkTypeFencing:
		return 6
	case domain.WorkTypeLandscaping:
		return 4
	}
	return 8
}

func urgencyComponent(remaining time.Duration) int {
	switch {
	case remaining <= 0:
		return 25
	case remaining <= 4*time.Hour:
		return 22
	case remaining <= 24*time.Hour:
		return 18
	case remaining <= 48*time.Hour:
		return 12
	case remaining <= 7*24*time.Hour:
		return 6
	default:
		return 0
	}
}

func digWindowComponent(in Input, now time.Time) int {
	if in.LegalDigDate.Sub(now) > 24*time.Hour {
		return 0
	}
	for _, r := range in.Responses {
		if r.Status == domain.ResponseStatusPending {
			return digWindowWeight
		}
	}
	return 0
}

func overdueComponent(responses []domain.UtilityResponse, now time.Time) int {
	if len(responses) == 0 {
		return 0
	}
	overdue := 0
	for i := range responses {
		if responses[i].Overdue(now) {
			overdue++
		}
	}
	return int(math.Round(overdueWeight * float64(overdue) / float64(len(responses))))
}
