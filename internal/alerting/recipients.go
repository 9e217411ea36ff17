package alerting

import (
	"math"
	"sort"

	"github.com/spec-kit/locate-service/internal/domain"
)

const earthRadiusKm = 6371.0

// Recipient is a user with the channels an alert goes out on.
type Recipient struct {
	UserID   string
	Channels []domain.Channel
	Contacts domain.ContactEndpoints
}

// ShouldUserReceive applies a subscription's type filter and quiet mode.
// Quiet mode never suppresses CRITICAL priority or urgent alert types.
func ShouldUserReceive(sub *domain.AlertSubscription, t domain.AlertType, p domain.AlertPriority) bool {
	if sub == nil || !sub.Active {
		return false
	}
	critical := p == domain.PriorityCritical || t.Urgent()
	if !sub.Wants(t) && !critical {
		return false
	}
	if sub.QuietMode && !critical {
		return false
	}
	return true
}

// MatchesTicket reports whether the subscription's scope covers the ticket.
func MatchesTicket(sub *domain.AlertSubscription, ticket *domain.Ticket) bool {
	if sub.OrganizationID != ticket.OrganizationID {
		return false
	}
	switch sub.Scope {
	case domain.ScopeOrganization:
	case domain.ScopeProject:
		if sub.ProjectID == nil || ticket.ProjectID == nil || *sub.ProjectID != *ticket.ProjectID {
			return false
		}
	case domain.ScopePersonal:
		if ticket.CreatedBy == nil || *ticket.CreatedBy != sub.UserID {
			return false
		}
	default:
		return false
	}
	if sub.Center != nil && sub.RadiusKm > 0 {
		if ticket.Site.Point == nil {
			return false
		}
		if distanceKm(*sub.Center, *ticket.Site.Point) > sub.RadiusKm {
			return false
		}
	}
	return true
}

// channelsFor picks the channels a subscription receives an alert on.
func channelsFor(sub *domain.AlertSubscription, ruleChannels []domain.Channel, p domain.AlertPriority) []domain.Channel {
	var out []domain.Channel
	for _, ch := range sub.Channels {
		if sub.Contacts.For(ch) == "" {
			continue
		}
		if len(ruleChannels) > 0 && !containsChannel(ruleChannels, ch) && p != domain.PriorityCritical {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// ResolveRecipients merges matching subscriptions into one recipient per
// user. ticket is nil for organization digests.
func ResolveRecipients(subs []domain.AlertSubscription, orgID string, ticket *domain.Ticket, rule Rule) []Recipient {
	byUser := map[string]*Recipient{}
	for i := range subs {
		sub := &subs[i]
		if ticket != nil {
			if !MatchesTicket(sub, ticket) {
				continue
			}
		} else if sub.OrganizationID != orgID {
			continue
		}
		if !ShouldUserReceive(sub, rule.AlertType, rule.Priority) {
			continue
		}
		channels := channelsFor(sub, rule.Channels, rule.Priority)
		if len(channels) == 0 {
			continue
		}
		rcpt, ok := byUser[sub.UserID]
		if !ok {
			rcpt = &Recipient{UserID: sub.UserID, Contacts: sub.Contacts}
			byUser[sub.UserID] = rcpt
		}
		for _, ch := range channels {
			if !containsChannel(rcpt.Channels, ch) {
				rcpt.Channels = append(rcpt.Channels, ch)
			}
		}
		rcpt.Contacts = mergeContacts(rcpt.Contacts, sub.Contacts)
	}
	out := make([]Recipient, 0, len(byUser))
	for _, r := range byUser {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func mergeContacts(a, b domain.ContactEndpoints) domain.ContactEndpoints {
	if a.Email == "" {
		a.Email = b.Email
	}
	if a.Phone == "" {
		a.Phone = b.Phone
	}
	if a.PushToken == "" {
		a.PushToken = b.PushToken
	}
	if a.WebhookURL == "" {
		a.WebhookURL = b.WebhookURL
	}
	return a
}

func containsChannel(list []domain.Channel, ch domain.Channel) bool {
	for _, c := range list {
		if c == ch {
			return true
		}
	}
	return false
}

func distanceKm(a, b domain.GeoPoint) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
