package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/locate-service/internal/alerting"
	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/deadline"
	"github.com/spec-kit/locate-service/internal/domain"
)

// Engine is the versioned jurisdiction and alert rule file.
type Engine struct {
	Version       int                 `yaml:"version"`
	Jurisdictions []JurisdictionEntry `yaml:"jurisdictions"`
	Rules         []RuleEntry         `yaml:"rules"`
}

// JurisdictionEntry is one locate center's calendar and statutory periods.
type JurisdictionEntry struct {
	Code                 string         `yaml:"code"`
	TimeZone             string         `yaml:"timezone"`
	Weekend              []string       `yaml:"weekend"`
	NoticeBusinessDays   int            `yaml:"notice_business_days"`
	ValidityDays         int            `yaml:"validity_days"`
	ValidityBusinessDays bool           `yaml:"validity_business_days"`
	ResponseBusinessDays int            `yaml:"response_business_days"`
	UpdateAfterDays      int            `yaml:"update_after_days"`
	EmergencyNotice      string         `yaml:"emergency_notice"`
	Holidays             []HolidayEntry `yaml:"holidays"`
}

// HolidayEntry is a dated non-business day.
type HolidayEntry struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

// RuleEntry is the file form of alerting.Rule.
type RuleEntry struct {
	Name        string   `yaml:"name"`
	Trigger     string   `yaml:"trigger"`
	Within      string   `yaml:"within"`
	Status      string   `yaml:"status"`
	AlertType   string   `yaml:"alert_type"`
	Priority    string   `yaml:"priority"`
	RequiresAck bool     `yaml:"requires_ack"`
	AckWithin   string   `yaml:"ack_within"`
	Channels    []string `yaml:"channels"`
	DigestHour  int      `yaml:"digest_hour"`
}

// LoadEngine reads and parses an engine file.
func LoadEngine(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine file: %w", err)
	}
	return ParseEngine(data)
}

// ParseEngine parses engine YAML.
func ParseEngine(data []byte) (*Engine, error) {
	var e Engine
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse engine file: %w", err)
	}
	if e.Version <= 0 {
		return nil, fmt.Errorf("engine file: version is required")
	}
	if len(e.Jurisdictions) == 0 {
		return nil, fmt.Errorf("engine file: at least one jurisdiction is required")
	}
	return &e, nil
}

// CalendarJurisdictions returns the calendar shape of each jurisdiction.
func (e *Engine) CalendarJurisdictions() ([]calendar.Jurisdiction, error) {
	out := make([]calendar.Jurisdiction, 0, len(e.Jurisdictions))
	for _, j := range e.Jurisdictions {
		weekend := make([]time.Weekday, 0, len(j.Weekend))
		for _, name := range j.Weekend {
			day, err := parseWeekday(name)
			if err != nil {
				return nil, fmt.Errorf("jurisdiction %s: %w", j.Code, err)
			}
			weekend = append(weekend, day)
		}
		out = append(out, calendar.Jurisdiction{Code: j.Code, TimeZone: j.TimeZone, Weekend: weekend})
	}
	return out, nil
}

// HolidaySource returns the holidays listed in the file.
func (e *Engine) HolidaySource() (calendar.StaticSource, error) {
	src := calendar.StaticSource{}
	for _, j := range e.Jurisdictions {
		days := map[calendar.Date]string{}
		for _, h := range j.Holidays {
			d, err := calendar.ParseDate(h.Date)
			if err != nil {
				return nil, fmt.Errorf("jurisdiction %s holiday %q: %w", j.Code, h.Date, err)
			}
			days[d] = h.Name
		}
		src[j.Code] = days
	}
	return src, nil
}

// DeadlineRules returns the statutory periods keyed by jurisdiction.
func (e *Engine) DeadlineRules() (map[string]deadline.Rules, error) {
	out := make(map[string]deadline.Rules, len(e.Jurisdictions))
	for _, j := range e.Jurisdictions {
		emergency, err := parseDuration(j.EmergencyNotice)
		if err != nil {
			return nil, fmt.Errorf("jurisdiction %s emergency_notice: %w", j.Code, err)
		}
		out[j.Code] = deadline.Rules{
			NoticeBusinessDays:   j.NoticeBusinessDays,
			ValidityDays:         j.ValidityDays,
			ValidityBusinessDays: j.ValidityBusinessDays,
			ResponseBusinessDays: j.ResponseBusinessDays,
			UpdateAfterDays:      j.UpdateAfterDays,
			EmergencyNotice:      emergency,
		}
	}
	return out, nil
}

// RuleSet builds the validated alert rule table. An empty rule list falls
// back to the built-in table.
func (e *Engine) RuleSet() (*alerting.RuleSet, error) {
	if len(e.Rules) == 0 {
		return alerting.NewRuleSet(e.Version, alerting.DefaultRules())
	}
	rules := make([]alerting.Rule, 0, len(e.Rules))
	for _, r := range e.Rules {
		within, err := parseDuration(r.Within)
		if err != nil {
			return nil, fmt.Errorf("rule %s within: %w", r.Name, err)
		}
		ackWithin, err := parseDuration(r.AckWithin)
		if err != nil {
			return nil, fmt.Errorf("rule %s ack_within: %w", r.Name, err)
		}
		channels := make([]domain.Channel, 0, len(r.Channels))
		for _, ch := range r.Channels {
			channels = append(channels, domain.Channel(strings.ToUpper(ch)))
		}
		rules = append(rules, alerting.Rule{
			Name:        r.Name,
			Trigger:     alerting.Trigger(strings.ToUpper(r.Trigger)),
			Within:      within,
			Status:      domain.TicketStatus(strings.ToUpper(r.Status)),
			AlertType:   domain.AlertType(strings.ToUpper(r.AlertType)),
			Priority:    domain.AlertPriority(strings.ToUpper(r.Priority)),
			RequiresAck: r.RequiresAck,
			AckWithin:   ackWithin,
			Channels:    channels,
			DigestHour:  r.DigestHour,
		})
	}
	return alerting.NewRuleSet(e.Version, rules)
}

// parseDuration accepts time.ParseDuration syntax plus a whole-day "d" suffix.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) || strings.EqualFold(d.String()[:3], name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
