// Package deadline stamps the statutory deadlines of a locate ticket.
package deadline

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/domain"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// Rules holds the statutory periods of one jurisdiction.
type Rules struct {
	NoticeBusinessDays   int
	ValidityDays         int
	ValidityBusinessDays bool
	ResponseBusinessDays int
	UpdateAfterDays      int
	EmergencyNotice      time.Duration
}

// CalendarProvider resolves jurisdiction calendars.
type CalendarProvider interface {
	Get(code string) (*calendar.Calendar, error)
}

// Calculator derives deadlines from a creation instant.
type Calculator struct {
	calendars CalendarProvider
	rules     map[string]Rules
}

// NewCalculator builds a calculator over per-jurisdiction rules.
func NewCalculator(calendars CalendarProvider, rules map[string]Rules) *Calculator {
	return &Calculator{calendars: calendars, rules: rules}
}

// Compute returns the deadlines for a ticket created at createdAt. The
// result depends only on its inputs and the calendar, so repeated calls
// agree; callers persist it once and never call it again for the ticket.
func (c *Calculator) Compute(ctx context.Context, jurisdiction string, ticketType domain.TicketType, createdAt time.Time) (domain.Deadlines, error) {
	var out domain.Deadlines

	rules, ok := c.rules[jurisdiction]
	if !ok {
		return out, apperrors.NewDeadlineComputationError("no statutory rules for jurisdiction "+jurisdiction, nil)
	}
	if err := rules.validate(); err != nil {
		return out, apperrors.NewDeadlineComputationError("invalid rules for "+jurisdiction, err)
	}
	cal, err := c.calendars.Get(jurisdiction)
	if err != nil {
		return out, apperrors.NewDeadlineComputationError("calendar unavailable", err)
	}
	if createdAt.IsZero() {
		return out, apperrors.NewDeadlineComputationError("missing creation time", nil)
	}

	switch ticketType {
	case domain.TicketTypeEmergency:
		if rules.EmergencyNotice <= 0 {
			return out, apperrors.NewDeadlineComputationError("emergency notice not configured for "+jurisdiction, nil)
		}
		out.LegalDigDate = createdAt.Add(rules.EmergencyNotice)
		out.ResponseWindowClosesAt = out.LegalDigDate
	case domain.TicketTypeStandard, domain.TicketTypeLargeProject:
		out.LegalDigDate, err = cal.AddBusinessDays(ctx, createdAt, rules.NoticeBusinessDays)
		if err != nil {
			return out, apperrors.NewDeadlineComputationError("legal dig date", err)
		}
		out.ResponseWindowClosesAt, err = cal.AddBusinessDays(ctx, createdAt, rules.ResponseBusinessDays)
		if err != nil {
			return out, apperrors.NewDeadlineComputationError("response window", err)
		}
	default:
		return out, apperrors.NewDeadlineComputationError(fmt.Sprintf("unknown ticket type %q", ticketType), nil)
	}
	out.ResponseWindowOpensAt = createdAt

	if rules.ValidityBusinessDays {
		out.ExpiresAt, err = cal.AddBusinessDays(ctx, out.LegalDigDate, rules.ValidityDays)
		if err != nil {
			return out, apperrors.NewDeadlineComputationError("expiration", err)
		}
	} else {
		out.ExpiresAt = cal.AddCalendarDays(out.LegalDigDate, rules.ValidityDays)
	}

	if ticketType == domain.TicketTypeLargeProject && rules.UpdateAfterDays > 0 {
		updateBy := cal.AddCalendarDays(createdAt, rules.UpdateAfterDays)
		out.UpdateByDate = &updateBy
	}

	if !out.LegalDigDate.After(createdAt) || !out.ExpiresAt.After(out.LegalDigDate) {
		return domain.Deadlines{}, apperrors.NewDeadlineComputationError(
			fmt.Sprintf("deadline ordering violated: created=%s legal=%s expires=%s",
				createdAt.Format(time.RFC3339), out.LegalDigDate.Format(time.RFC3339), out.ExpiresAt.Format(time.RFC3339)), nil)
	}
	return out, nil
}

func (r Rules) validate() error {
	if r.NoticeBusinessDays <= 0 {
		return fmt.Errorf("notice business days must be positive, got %d", r.NoticeBusinessDays)
	}
	if r.ValidityDays <= 0 {
		return fmt.Errorf("validity days must be positive, got %d", r.ValidityDays)
	}
	if r.ResponseBusinessDays <= 0 {
		return fmt.Errorf("response business days must be positive, got %d", r.ResponseBusinessDays)
	}
	if r.UpdateAfterDays < 0 {
		return fmt.Errorf("update after days must not be negative, got %d", r.UpdateAfterDays)
	}
	return nil
}
