package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/locate-service/internal/domain"
)

func TestDetectNothingOnCleanResponses(t *testing.T) {
	findings := Detect([]domain.UtilityResponse{
		{UtilityCode: "ATMOS", Facility: domain.FacilityGas, Status: domain.ResponseStatusClear},
		{UtilityCode: "ONCOR", Facility: domain.FacilityElectric, Status: domain.ResponseStatusMarked,
			Evidence: domain.Evidence{MarkColors: []domain.MarkColor{domain.MarkRed}}},
	})
	assert.Empty(t, findings)
}

func TestDetectUtilityReported(t *testing.T) {
	findings := Detect([]domain.UtilityResponse{
		{UtilityCode: "ATMOS", Facility: domain.FacilityGas, Status: domain.ResponseStatusConflict, Revision: 2},
	})
	require.Len(t, findings, 1)
	assert.Equal(t, domain.ConflictUtilityReported, findings[0].Kind)
	assert.Equal(t, "reported:ATMOS:r2", findings[0].Fingerprint)
}

func TestDetectContradictoryMarks(t *testing.T) {
	findings := Detect([]domain.UtilityResponse{
		{UtilityCode: "ATMOS", UtilityName: "Atmos Energy", Facility: domain.FacilityGas, Status: domain.ResponseStatusClear, Revision: 1},
		{UtilityCode: "ONCOR", Facility: domain.FacilityElectric, Status: domain.ResponseStatusMarked, Revision: 1,
			Evidence: domain.Evidence{MarkColors: []domain.MarkColor{domain.MarkRed, domain.MarkYellow}, PhotoRefs: []string{"photo-1"}}},
	})
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, domain.ConflictContradictoryMarks, f.Kind)
	assert.Equal(t, []string{"ATMOS", "ONCOR"}, f.UtilityCodes)
	assert.Equal(t, []string{"photo-1"}, f.EvidenceRefs)
	assert.Contains(t, f.Reason, "Atmos Energy")
}

func TestDetectVerificationMismatch(t *testing.T) {
	mismatch := domain.VerificationMismatch
	match := domain.VerificationMatch
	findings := Detect([]domain.UtilityResponse{
		{UtilityCode: "ATMOS", Status: domain.ResponseStatusClear, VerificationResult: &mismatch, Revision: 3},
		{UtilityCode: "ONCOR", Status: domain.ResponseStatusMarked, VerificationResult: &match, Revision: 1},
	})
	require.Len(t, findings, 1)
	assert.Equal(t, domain.ConflictVerificationMismatch, findings[0].Kind)
	assert.Equal(t, "verify:ATMOS:r3:0", findings[0].Fingerprint)
}

func TestDetectEachVerificationMismatchIsDistinct(t *testing.T) {
	mismatch := domain.VerificationMismatch
	first := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	response := domain.UtilityResponse{
		UtilityCode: "ATMOS", Status: domain.ResponseStatusMarked,
		VerificationResult: &mismatch, VerifiedAt: &first, Revision: 1,
	}

	before := Detect([]domain.UtilityResponse{response})
	again := Detect([]domain.UtilityResponse{response})
	response.VerifiedAt = &second
	after := Detect([]domain.UtilityResponse{response})

	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].Fingerprint, again[0].Fingerprint)
	assert.NotEqual(t, before[0].Fingerprint, after[0].Fingerprint)
}

func TestDetectIsStable(t *testing.T) {
	responses := []domain.UtilityResponse{
		{UtilityCode: "B", Status: domain.ResponseStatusConflict},
		{UtilityCode: "A", Status: domain.ResponseStatusConflict},
	}
	first := Detect(responses)
	second := Detect(responses)
	assert.Equal(t, first, second)
	assert.Equal(t, "reported:A:r0", first[0].Fingerprint)
}
