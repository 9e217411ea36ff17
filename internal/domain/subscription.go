package domain

import "time"

// SubscriptionScope is the breadth of tickets a subscription covers.
type SubscriptionScope string

const (
	ScopeOrganization SubscriptionScope = "ORGANIZATION"
	ScopeProject      SubscriptionScope = "PROJECT"
	ScopePersonal     SubscriptionScope = "PERSONAL"
)

func (s SubscriptionScope) Valid() bool {
	switch s {
	case ScopeOrganization, ScopeProject, ScopePersonal:
		return true
	}
	return false
}

// ContactEndpoints holds where each channel delivers.
type ContactEndpoints struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PushToken  string `json:"push_token,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// For returns the endpoint for a channel, empty if none.
func (c ContactEndpoints) For(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.Phone
	case ChannelPush:
		return c.PushToken
	case ChannelWebhook:
		return c.WebhookURL
	}
	return ""
}

// AlertSubscription is a user's opt-in to alert types and channels.
type AlertSubscription struct {
	ID             string
	UserID         string
	OrganizationID string
	Scope          SubscriptionScope
	ProjectID      *string
	Center         *GeoPoint
	RadiusKm       float64
	AlertTypes     []AlertType
	Channels       []Channel
	Contacts       ContactEndpoints
	QuietMode      bool
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Wants reports whether the subscription enabled alert type t.
func (s *AlertSubscription) Wants(t AlertType) bool {
	for _, candidate := range s.AlertTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Uses reports whether the subscription enabled channel c.
func (s *AlertSubscription) Uses(c Channel) bool {
	for _, candidate := range s.Channels {
		if candidate == c {
			return true
		}
	}
	return false
}
