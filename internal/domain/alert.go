package domain

import "time"

// AlertType enumerates notification kinds the engine emits.
type AlertType string

const (
	AlertConflictDetected AlertType = "CONFLICT_DETECTED"
	AlertTicketExpired    AlertType = "TICKET_EXPIRED"
	AlertExpiringImminent AlertType = "EXPIRING_IMMINENT"
	AlertExpiringSoon     AlertType = "EXPIRING_SOON"
	AlertUpdateDue        AlertType = "UPDATE_DUE"
	AlertResponseOverdue  AlertType = "RESPONSE_OVERDUE"
	AlertLegalDigReady    AlertType = "LEGAL_DIG_READY"
	AlertAllClear         AlertType = "ALL_CLEAR"
	AlertRenewalReminder  AlertType = "RENEWAL_REMINDER"
	AlertDailyRadar       AlertType = "DAILY_RADAR"
	AlertEscalation       AlertType = "ESCALATION"
)

func (a AlertType) Valid() bool {
	switch a {
	case AlertConflictDetected, AlertTicketExpired, AlertExpiringImminent, AlertExpiringSoon,
		AlertUpdateDue, AlertResponseOverdue, AlertLegalDigReady, AlertAllClear,
		AlertRenewalReminder, AlertDailyRadar, AlertEscalation:
		return true
	}
	return false
}

// Urgent alert types pass through quiet mode.
func (a AlertType) Urgent() bool {
	switch a {
	case AlertConflictDetected, AlertTicketExpired, AlertExpiringImminent, AlertEscalation:
		return true
	case AlertExpiringSoon, AlertUpdateDue, AlertResponseOverdue, AlertLegalDigReady,
		AlertAllClear, AlertRenewalReminder, AlertDailyRadar:
		return false
	}
	return false
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail   Channel = "EMAIL"
	ChannelSMS     Channel = "SMS"
	ChannelPush    Channel = "PUSH"
	ChannelWebhook Channel = "WEBHOOK"
)

// Channels lists every channel.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}

// AlertPriority orders alerts for dispatch.
type AlertPriority string

const (
	PriorityLow      AlertPriority = "LOW"
	PriorityNormal   AlertPriority = "NORMAL"
	PriorityHigh     AlertPriority = "HIGH"
	PriorityCritical AlertPriority = "CRITICAL"
)

// Rank returns a sortable weight; higher is more urgent.
func (p AlertPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	}
	return -1
}

func (p AlertPriority) Valid() bool {
	return p.Rank() >= 0
}

// TicketAlert is one emitted notification occurrence. It is immutable after
// creation apart from delivery bookkeeping.
type TicketAlert struct {
	ID             string
	TicketID       string
	OrganizationID string
	AlertType      AlertType
	DedupKey       string
	RuleName       string
	Channels       []Channel
	Priority       AlertPriority
	Subject        string
	Body           string
	Recipients     []string
	RequiresAck    bool
	Attempts       int
	SentAt         *time.Time
	DeliveredAt    *time.Time
	FailedAt       *time.Time
	FailureReason  *string
	CreatedAt      time.Time
}
