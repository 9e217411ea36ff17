package calendar

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Jurisdiction describes the calendar shape of one locate center.
type Jurisdiction struct {
	Code     string
	TimeZone string
	Weekend  []time.Weekday
}

// Registry hands out read-only calendars that share one holiday cache.
type Registry struct {
	calendars map[string]*Calendar
}

// NewRegistry builds calendars for each jurisdiction. cacheSize bounds the
// number of cached (jurisdiction, year) holiday tables.
func NewRegistry(jurisdictions []Jurisdiction, source Source, cacheSize int) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[string, map[Date]string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("holiday cache: %w", err)
	}
	reg := &Registry{calendars: make(map[string]*Calendar, len(jurisdictions))}
	for _, j := range jurisdictions {
		loc, err := time.LoadLocation(j.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("jurisdiction %s time zone: %w", j.Code, err)
		}
		weekend := j.Weekend
		if len(weekend) == 0 {
			weekend = []time.Weekday{time.Saturday, time.Sunday}
		}
		days := make(map[time.Weekday]bool, len(weekend))
		for _, w := range weekend {
			days[w] = true
		}
		reg.calendars[j.Code] = &Calendar{
			jurisdiction: j.Code,
			loc:          loc,
			weekend:      days,
			source:       source,
			cache:        cache,
		}
	}
	return reg, nil
}

// Get returns the calendar for a jurisdiction.
func (r *Registry) Get(code string) (*Calendar, error) {
	cal, ok := r.calendars[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJurisdiction, code)
	}
	return cal, nil
}
