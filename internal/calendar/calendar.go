// Package calendar implements jurisdiction business-day arithmetic.
//
// A business day is a weekday that is not a jurisdiction holiday. Day
// boundaries are local midnight in the jurisdiction's time zone, and date
// arithmetic keeps the wall-clock time of the starting instant.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxScanDays bounds the search for the next business day.
const maxScanDays = 366

var (
	// ErrUnknownJurisdiction is returned for jurisdictions without a calendar.
	ErrUnknownJurisdiction = errors.New("unknown jurisdiction")
	// ErrNoBusinessDay is returned when no business day exists within a year.
	ErrNoBusinessDay = errors.New("no business day within scan window")
)

// Source supplies the holiday table for a jurisdiction and year.
type Source interface {
	Holidays(ctx context.Context, jurisdiction string, year int) (map[Date]string, error)
}

// StaticSource is an in-memory holiday table keyed by jurisdiction.
type StaticSource map[string]map[Date]string

// Holidays implements Source.
func (s StaticSource) Holidays(_ context.Context, jurisdiction string, year int) (map[Date]string, error) {
	result := map[Date]string{}
	for date, name := range s[jurisdiction] {
		if date.Year == year {
			result[date] = name
		}
	}
	return result, nil
}

// Sources merges several holiday tables. The first source to name a date
// wins.
type Sources []Source

// Holidays implements Source.
func (s Sources) Holidays(ctx context.Context, jurisdiction string, year int) (map[Date]string, error) {
	result := map[Date]string{}
	for _, src := range s {
		days, err := src.Holidays(ctx, jurisdiction, year)
		if err != nil {
			return nil, err
		}
		for date, name := range days {
			if _, seen := result[date]; !seen {
				result[date] = name
			}
		}
	}
	return result, nil
}

// Calendar answers business-day questions for one jurisdiction.
type Calendar struct {
	jurisdiction string
	loc          *time.Location
	weekend      map[time.Weekday]bool
	source       Source
	cache        *lru.Cache[string, map[Date]string]
}

// Location returns the jurisdiction's time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Jurisdiction returns the calendar's jurisdiction code.
func (c *Calendar) Jurisdiction() string {
	return c.jurisdiction
}

// Holidays returns the holiday set for year.
func (c *Calendar) Holidays(ctx context.Context, year int) (map[Date]string, error) {
	key := fmt.Sprintf("%s:%d", c.jurisdiction, year)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}
	holidays, err := c.source.Holidays(ctx, c.jurisdiction, year)
	if err != nil {
		return nil, fmt.Errorf("load holidays %s: %w", key, err)
	}
	if holidays == nil {
		holidays = map[Date]string{}
	}
	c.cache.Add(key, holidays)
	return holidays, nil
}

// IsBusinessDay reports whether d is a working day in the jurisdiction.
func (c *Calendar) IsBusinessDay(ctx context.Context, d Date) (bool, error) {
	if c.weekend[d.Weekday()] {
		return false, nil
	}
	holidays, err := c.Holidays(ctx, d.Year)
	if err != nil {
		return false, err
	}
	_, holiday := holidays[d]
	return !holiday, nil
}

// AddBusinessDays advances t by n business days. Counting starts with the
// day after t's local date, so a Monday 09:00 start plus two business days
// lands on Wednesday 09:00.
func (c *Calendar) AddBusinessDays(ctx context.Context, t time.Time, n int) (time.Time, error) {
	if n < 0 {
		return time.Time{}, fmt.Errorf("negative business day count %d", n)
	}
	local := t.In(c.loc)
	day := DateOf(local)
	counted := 0
	gap := 0
	for counted < n {
		day = day.AddDays(1)
		ok, err := c.IsBusinessDay(ctx, day)
		if err != nil {
			return time.Time{}, err
		}
		if !ok {
			gap++
			if gap > maxScanDays {
				return time.Time{}, ErrNoBusinessDay
			}
			continue
		}
		gap = 0
		counted++
	}
	return day.At(local, c.loc), nil
}

// AddCalendarDays advances t by n local calendar days keeping wall time.
func (c *Calendar) AddCalendarDays(t time.Time, n int) time.Time {
	local := t.In(c.loc)
	return DateOf(local).AddDays(n).At(local, c.loc)
}
