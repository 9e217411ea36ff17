// Package alerting evaluates the alert rule table against ticket snapshots.
// Everything here is pure; claiming, dispatch and persistence belong to the
// alert service.
package alerting

import (
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// Trigger is the predicate family of a rule.
type Trigger string

const (
	TriggerStatusIs          Trigger = "STATUS_IS"
	TriggerBeforeExpiry      Trigger = "BEFORE_EXPIRY"
	TriggerBeforeUpdateBy    Trigger = "BEFORE_UPDATE_BY"
	TriggerLegalDigReached   Trigger = "LEGAL_DIG_REACHED"
	TriggerResponseOverdue   Trigger = "RESPONSE_OVERDUE"
	TriggerAllRespondedClear Trigger = "ALL_RESPONDED_CLEAR"
	TriggerRenewalWindow     Trigger = "RENEWAL_WINDOW"
	TriggerDailyDigest       Trigger = "DAILY_DIGEST"
)

// Rule maps a time-to-event predicate to an alert type.
type Rule struct {
	Name        string
	Trigger     Trigger
	Within      time.Duration
	Status      domain.TicketStatus
	AlertType   domain.AlertType
	Priority    domain.AlertPriority
	RequiresAck bool
	AckWithin   time.Duration
	Channels    []domain.Channel
	DigestHour  int
}

// Digest reports whether the rule is evaluated per organization rather
// than per ticket.
func (r Rule) Digest() bool {
	return r.Trigger == TriggerDailyDigest
}

// Validate checks a rule in isolation.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule without name")
	}
	if !r.AlertType.Valid() {
		return fmt.Errorf("rule %s: unknown alert type %q", r.Name, r.AlertType)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("rule %s: unknown priority %q", r.Name, r.Priority)
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("rule %s: unknown status %q", r.Name, r.Status)
	}
	for _, ch := range r.Channels {
		if !ch.Valid() {
			return fmt.Errorf("rule %s: unknown channel %q", r.Name, ch)
		}
	}
	if r.RequiresAck && r.AckWithin <= 0 {
		return fmt.Errorf("rule %s: requires_ack needs a positive ack_within", r.Name)
	}
	switch r.Trigger {
	case TriggerStatusIs:
		if r.Status == "" {
			return fmt.Errorf("rule %s: STATUS_IS needs a status", r.Name)
		}
	case TriggerBeforeExpiry, TriggerBeforeUpdateBy, TriggerRenewalWindow:
		if r.Within <= 0 {
			return fmt.Errorf("rule %s: %s needs a positive within", r.Name, r.Trigger)
		}
	case TriggerLegalDigReached, TriggerResponseOverdue, TriggerAllRespondedClear:
	case TriggerDailyDigest:
		if r.DigestHour < 0 || r.DigestHour > 23 {
			return fmt.Errorf("rule %s: digest hour %d out of range", r.Name, r.DigestHour)
		}
	default:
		return fmt.Errorf("rule %s: unknown trigger %q", r.Name, r.Trigger)
	}
	return nil
}

// RuleSet is a versioned, validated rule table ordered most urgent first.
// Rules of equal priority keep their configured order.
type RuleSet struct {
	Version int
	rules   []Rule
}

// NewRuleSet validates and orders rules.
func NewRuleSet(version int, rules []Rule) (*RuleSet, error) {
	names := map[string]bool{}
	ordered := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if names[r.Name] {
			return nil, fmt.Errorf("duplicate rule name %s", r.Name)
		}
		names[r.Name] = true
		ordered = append(ordered, r)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() > ordered[j].Priority.Rank()
	})
	return &RuleSet{Version: version, rules: ordered}, nil
}

// Rules returns every rule in priority order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Find returns the first rule that emits alert type t.
func (rs *RuleSet) Find(t domain.AlertType) (Rule, bool) {
	for _, r := range rs.rules {
		if r.AlertType == t {
			return r, true
		}
	}
	return Rule{}, false
}

// Named returns the rule called name, falling back to the built-in expiry
// and escalation rules.
func (rs *RuleSet) Named(name string) (Rule, bool) {
	for _, r := range rs.rules {
		if r.Name == name {
			return r, true
		}
	}
	switch name {
	case ExpiredRuleName:
		return rs.Expired(), true
	case EscalationRuleName:
		return rs.Escalation(), true
	}
	return Rule{}, false
}

// Expired returns the rule used for TICKET_EXPIRED alerts.
func (rs *RuleSet) Expired() Rule {
	if r, ok := rs.Find(domain.AlertTicketExpired); ok {
		return r
	}
	return expiredRule()
}

// Escalation returns the rule used for ESCALATION alerts. Escalations never
// require acknowledgement themselves.
func (rs *RuleSet) Escalation() Rule {
	r, ok := rs.Find(domain.AlertEscalation)
	if !ok {
		r = escalationRule()
	}
	r.RequiresAck = false
	r.AckWithin = 0
	return r
}
