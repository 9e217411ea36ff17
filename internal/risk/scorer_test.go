package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/locate-service/internal/domain"
)

var base = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

func snapshot(statuses ...domain.ResponseStatus) Input {
	kinds := []domain.FacilityKind{domain.FacilityGas, domain.FacilityElectric, domain.FacilityTelecom}
	responses := make([]domain.UtilityResponse, 0, len(statuses))
	for i, st := range statuses {
		responses = append(responses, domain.UtilityResponse{
			UtilityCode:            string(kinds[i%len(kinds)]),
			Facility:               kinds[i%len(kinds)],
			Status:                 st,
			ResponseWindowClosesAt: base.Add(48 * time.Hour),
		})
	}
	return Input{
		WorkType:     domain.WorkTypeTrenching,
		LegalDigDate: base.Add(48 * time.Hour),
		ExpiresAt:    base.Add(16 * 24 * time.Hour),
		Responses:    responses,
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	in := snapshot(domain.ResponseStatusPending, domain.ResponseStatusClear)
	now := base.Add(3 * 24 * time.Hour)
	assert.Equal(t, Score(in, now), Score(in, now))
}

func TestScoreComponents(t *testing.T) {
	in := snapshot(domain.ResponseStatusClear, domain.ResponseStatusMarked)
	// gas 20 + electric 15 capped at 30, trenching 18, no urgency yet
	assert.Equal(t, 48, Score(in, base))
}

func TestScoreMonotonicInTimeRemaining(t *testing.T) {
	in := snapshot(domain.ResponseStatusPending, domain.ResponseStatusClear, domain.ResponseStatusPending)
	prev := -1
	for h := 0; h <= 20*24; h += 3 {
		s := Score(in, base.Add(time.Duration(h)*time.Hour))
		assert.GreaterOrEqual(t, s, prev, "score dropped at hour %d", h)
		prev = s
	}
}

func TestConflictStrictlyIncreasesScore(t *testing.T) {
	cases := []Input{
		snapshot(domain.ResponseStatusClear),
		snapshot(domain.ResponseStatusPending, domain.ResponseStatusPending, domain.ResponseStatusPending),
	}
	worst := snapshot(domain.ResponseStatusPending, domain.ResponseStatusPending, domain.ResponseStatusPending)
	worst.WorkType = domain.WorkTypeBoring
	cases = append(cases, worst)

	for _, in := range cases {
		for _, now := range []time.Time{base, base.Add(20 * 24 * time.Hour)} {
			without := Score(in, now)
			in.ConflictOpen = true
			with := Score(in, now)
			in.ConflictOpen = false
			assert.Greater(t, with, without)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	in := snapshot(domain.ResponseStatusPending, domain.ResponseStatusPending, domain.ResponseStatusPending)
	in.WorkType = domain.WorkTypeBoring
	in.ConflictOpen = true
	assert.Equal(t, 100, Score(in, base.Add(30*24*time.Hour)))

	in.ConflictOpen = false
	assert.Equal(t, 95, Score(in, base.Add(30*24*time.Hour)))

	empty := Input{WorkType: domain.WorkTypeLandscaping, ExpiresAt: base.Add(30 * 24 * time.Hour), LegalDigDate: base.Add(48 * time.Hour)}
	assert.Equal(t, 4, Score(empty, base))
}

func TestInputFor(t *testing.T) {
	ticket := &domain.Ticket{WorkType: domain.WorkTypeBoring, LegalDigDate: base, ExpiresAt: base.Add(time.Hour)}
	in := InputFor(ticket, nil, 2)
	assert.True(t, in.ConflictOpen)
	assert.Equal(t, domain.WorkTypeBoring, in.WorkType)
}
