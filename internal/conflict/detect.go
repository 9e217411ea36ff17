// Package conflict detects contradictory utility locate information.
package conflict

import (
	"fmt"
	"sort"

	"github.com/spec-kit/locate-service/internal/domain"
)

// Finding is a detected conflict not yet persisted. Fingerprint identifies
// the exact evidence it was derived from; detecting the same evidence again
// yields the same fingerprint.
type Finding struct {
	Kind         domain.ConflictKind
	Fingerprint  string
	Reason       string
	UtilityCodes []string
	EvidenceRefs []string
}

// Detect runs every rule over a ticket's responses. Results are ordered
// deterministically.
func Detect(responses []domain.UtilityResponse) []Finding {
	sorted := make([]domain.UtilityResponse, len(responses))
	copy(sorted, responses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UtilityCode < sorted[j].UtilityCode })

	var findings []Finding
	findings = append(findings, reported(sorted)...)
	findings = append(findings, contradictoryMarks(sorted)...)
	findings = append(findings, verificationMismatches(sorted)...)
	return findings
}

func reported(responses []domain.UtilityResponse) []Finding {
	var out []Finding
	for _, r := range responses {
		if r.Status != domain.ResponseStatusConflict {
			continue
		}
		out = append(out, Finding{
			Kind:         domain.ConflictUtilityReported,
			Fingerprint:  fmt.Sprintf("reported:%s:r%d", r.UtilityCode, r.Revision),
			Reason:       fmt.Sprintf("%s reported a conflict", nameOf(r)),
			UtilityCodes: []string{r.UtilityCode},
			EvidenceRefs: refs(r.Evidence),
		})
	}
	return out
}

// contradictoryMarks flags a utility that reported CLEAR while another
// utility's marks on site show the clearing utility's colour.
func contradictoryMarks(responses []domain.UtilityResponse) []Finding {
	var out []Finding
	for _, clear := range responses {
		if clear.Status != domain.ResponseStatusClear {
			continue
		}
		color, ok := clear.Facility.Color()
		if !ok {
			continue
		}
		for _, marked := range responses {
			if marked.UtilityCode == clear.UtilityCode {
				continue
			}
			if marked.Status != domain.ResponseStatusMarked && marked.Status != domain.ResponseStatusIncomplete {
				continue
			}
			if !marked.Evidence.HasColor(color) {
				continue
			}
			out = append(out, Finding{
				Kind: domain.ConflictContradictoryMarks,
				Fingerprint: fmt.Sprintf("marks:%s:r%d:%s:r%d",
					clear.UtilityCode, clear.Revision, marked.UtilityCode, marked.Revision),
				Reason: fmt.Sprintf("%s reported clear but %s marks (%s) were recorded by %s",
					nameOf(clear), color, clear.Facility, nameOf(marked)),
				UtilityCodes: []string{clear.UtilityCode, marked.UtilityCode},
				EvidenceRefs: append(refs(clear.Evidence), refs(marked.Evidence)...),
			})
		}
	}
	return out
}

// verificationMismatches flags every field check that disagreed with the
// utility's response. Each verification is its own piece of evidence, so a
// later mismatch on the same revision is a new conflict.
func verificationMismatches(responses []domain.UtilityResponse) []Finding {
	var out []Finding
	for _, r := range responses {
		if r.VerificationResult == nil || *r.VerificationResult != domain.VerificationMismatch {
			continue
		}
		out = append(out, Finding{
			Kind:         domain.ConflictVerificationMismatch,
			Fingerprint:  fmt.Sprintf("verify:%s:r%d:%d", r.UtilityCode, r.Revision, verifiedAt(r)),
			Reason:       fmt.Sprintf("field verification does not match %s response %s", nameOf(r), r.Status),
			UtilityCodes: []string{r.UtilityCode},
			EvidenceRefs: append(refs(r.Evidence), refs(r.VerificationEvidence)...),
		})
	}
	return out
}

func verifiedAt(r domain.UtilityResponse) int64 {
	if r.VerifiedAt == nil {
		return 0
	}
	return r.VerifiedAt.UnixNano()
}

func nameOf(r domain.UtilityResponse) string {
	if r.UtilityName != "" {
		return r.UtilityName
	}
	return r.UtilityCode
}

func refs(e domain.Evidence) []string {
	if len(e.PhotoRefs) == 0 {
		return nil
	}
	out := make([]string, len(e.PhotoRefs))
	copy(out, e.PhotoRefs)
	return out
}
