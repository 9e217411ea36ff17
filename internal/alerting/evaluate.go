package alerting

import (
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// TicketFacts is the snapshot a ticket's rules are evaluated against.
type TicketFacts struct {
	Ticket        *domain.Ticket
	Responses     []domain.UtilityResponse
	OpenConflicts []domain.Conflict
	HasRenewal    bool
}

// Candidate is an alert that is due but not yet claimed.
type Candidate struct {
	Rule           Rule
	TicketID       string
	OrganizationID string
	Occurrence     string
	DedupKey       string
}

// DedupKey builds the natural key of one alert occurrence.
func DedupKey(scope string, t domain.AlertType, occurrence string) string {
	return fmt.Sprintf("%s|%s|%s", scope, t, occurrence)
}

// OrganizationScope is the dedup scope of organization digests.
func OrganizationScope(orgID string) string {
	return "org:" + orgID
}

// EvaluateTicket returns the per-ticket candidates due at now, most urgent
// first. Terminal tickets never produce candidates.
func EvaluateTicket(rs *RuleSet, f TicketFacts, now time.Time) []Candidate {
	t := f.Ticket
	if t == nil || t.Status.Terminal() {
		return nil
	}
	var out []Candidate
	for _, rule := range rs.rules {
		if rule.Digest() {
			continue
		}
		if rule.Status != "" && rule.Trigger != TriggerStatusIs && t.Status != rule.Status {
			continue
		}
		for _, occurrence := range occurrences(rule, f, now) {
			out = append(out, Candidate{
				Rule:           rule,
				TicketID:       t.ID,
				OrganizationID: t.OrganizationID,
				Occurrence:     occurrence,
				DedupKey:       DedupKey(t.ID, rule.AlertType, occurrence),
			})
		}
	}
	return out
}

// occurrences returns one entry per natural occurrence of the rule's event,
// or nil when the predicate does not hold.
func occurrences(rule Rule, f TicketFacts, now time.Time) []string {
	t := f.Ticket
	switch rule.Trigger {
	case TriggerStatusIs:
		if t.Status != rule.Status {
			return nil
		}
		if t.Status == domain.TicketStatusConflict {
			return conflictOccurrences(f.OpenConflicts)
		}
		return []string{string(t.Status)}
	case TriggerBeforeExpiry:
		if within(t.ExpiresAt, now, rule.Within) {
			return []string{"expiry"}
		}
	case TriggerBeforeUpdateBy:
		if t.UpdateByDate != nil && within(*t.UpdateByDate, now, rule.Within) {
			return []string{"update"}
		}
	case TriggerLegalDigReached:
		if !now.Before(t.LegalDigDate.Add(-rule.Within)) {
			return []string{"legal-dig"}
		}
	case TriggerResponseOverdue:
		var codes []string
		for i := range f.Responses {
			if f.Responses[i].Overdue(now) {
				codes = append(codes, f.Responses[i].UtilityCode)
			}
		}
		sort.Strings(codes)
		return codes
	case TriggerAllRespondedClear:
		if t.Status == domain.TicketStatusClear && t.TotalUtilities > 0 && t.RespondedUtilities == t.TotalUtilities {
			return []string{"all-clear"}
		}
	case TriggerRenewalWindow:
		if t.Status == domain.TicketStatusClear && !f.HasRenewal && within(t.ExpiresAt, now, rule.Within) {
			return []string{"renewal"}
		}
	case TriggerDailyDigest:
		return nil
	}
	return nil
}

func conflictOccurrences(conflicts []domain.Conflict) []string {
	var ids []string
	for i := range conflicts {
		if conflicts[i].Open() {
			ids = append(ids, conflicts[i].ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// within reports whether deadline is still ahead of now by at most d.
func within(deadline, now time.Time, d time.Duration) bool {
	remaining := deadline.Sub(now)
	return remaining > 0 && remaining <= d
}

// EvaluateDigest returns the digest candidates for one organization. A
// digest fires once per local calendar day, at or after its digest hour.
func EvaluateDigest(rs *RuleSet, orgID string, loc *time.Location, now time.Time) []Candidate {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	var out []Candidate
	for _, rule := range rs.rules {
		if !rule.Digest() || local.Hour() < rule.DigestHour {
			continue
		}
		occurrence := local.Format(time.DateOnly)
		out = append(out, Candidate{
			Rule:           rule,
			OrganizationID: orgID,
			Occurrence:     occurrence,
			DedupKey:       DedupKey(OrganizationScope(orgID), rule.AlertType, occurrence),
		})
	}
	return out
}

// SortCandidates orders candidates most urgent first, then by ticket and
// key so dispatch order is reproducible.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		ri, rj := cs[i].Rule.Priority.Rank(), cs[j].Rule.Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return cs[i].DedupKey < cs[j].DedupKey
	})
}
