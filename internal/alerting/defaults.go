package alerting

import (
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// DefaultRules is the built-in rule table used when no engine file is
// configured. configs/engine.yaml carries the same table.
func DefaultRules() []Rule {
	all := []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush, domain.ChannelWebhook}
	return []Rule{
		{
			Name: "conflict", Trigger: TriggerStatusIs, Status: domain.TicketStatusConflict,
			AlertType: domain.AlertConflictDetected, Priority: domain.PriorityCritical,
			RequiresAck: true, AckWithin: 30 * time.Minute, Channels: all,
		},
		{
			Name: "expiring-imminent", Trigger: TriggerBeforeExpiry, Within: 4 * time.Hour,
			AlertType: domain.AlertExpiringImminent, Priority: domain.PriorityCritical,
			RequiresAck: true, AckWithin: time.Hour, Channels: all,
		},
		{
			Name: "response-overdue", Trigger: TriggerResponseOverdue,
			AlertType: domain.AlertResponseOverdue, Priority: domain.PriorityHigh,
			Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelPush},
		},
		{
			Name: "expiring-soon", Trigger: TriggerBeforeExpiry, Within: 48 * time.Hour,
			AlertType: domain.AlertExpiringSoon, Priority: domain.PriorityHigh,
			Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelPush},
		},
		{
			Name: "update-due", Trigger: TriggerBeforeUpdateBy, Within: 72 * time.Hour,
			AlertType: domain.AlertUpdateDue, Priority: domain.PriorityHigh,
			Channels: []domain.Channel{domain.ChannelEmail},
		},
		{
			Name: "legal-dig-ready", Trigger: TriggerLegalDigReached, Status: domain.TicketStatusClear,
			AlertType: domain.AlertLegalDigReady, Priority: domain.PriorityNormal,
			Channels: []domain.Channel{domain.ChannelPush},
		},
		{
			Name: "all-clear", Trigger: TriggerAllRespondedClear,
			AlertType: domain.AlertAllClear, Priority: domain.PriorityNormal,
			Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelPush},
		},
		{
			Name: "renewal", Trigger: TriggerRenewalWindow, Within: 5 * 24 * time.Hour,
			AlertType: domain.AlertRenewalReminder, Priority: domain.PriorityNormal,
			Channels: []domain.Channel{domain.ChannelEmail},
		},
		{
			Name: "daily-radar", Trigger: TriggerDailyDigest, DigestHour: 6,
			AlertType: domain.AlertDailyRadar, Priority: domain.PriorityLow,
			Channels: []domain.Channel{domain.ChannelEmail},
		},
	}
}

// Rules for alerts raised outside rule evaluation: the expiry sweep emits
// TICKET_EXPIRED and the escalation sweep emits ESCALATION. A rule table
// may override either by naming a rule with the same alert type.
const (
	ExpiredRuleName    = "ticket-expired"
	EscalationRuleName = "escalation"
)

func expiredRule() Rule {
	return Rule{
		Name: ExpiredRuleName, Trigger: TriggerStatusIs, Status: domain.TicketStatusExpired,
		AlertType: domain.AlertTicketExpired, Priority: domain.PriorityCritical,
		Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush, domain.ChannelWebhook},
	}
}

func escalationRule() Rule {
	return Rule{
		Name: EscalationRuleName, Trigger: TriggerStatusIs, Status: domain.TicketStatusConflict,
		AlertType: domain.AlertEscalation, Priority: domain.PriorityCritical,
		Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS},
	}
}
