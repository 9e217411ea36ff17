package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/locate-service/internal/domain"
)

// Message is the human text of an alert.
type Message struct {
	Subject string
	Body    string
}

// RenderTicket builds the subject and body of a per-ticket alert.
func RenderTicket(t domain.AlertType, ticket *domain.Ticket, occurrence string, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}
	ref := ticket.TicketNumber
	if ref == "" {
		ref = ticket.ID
	}
	site := ticket.Site.Address
	expires := ticket.ExpiresAt.In(loc).Format("Mon Jan 2 15:04 MST")
	legal := ticket.LegalDigDate.In(loc).Format("Mon Jan 2 15:04 MST")

	switch t {
	case domain.AlertConflictDetected:
		return Message{
			Subject: fmt.Sprintf("CONFLICT on locate ticket %s", ref),
			Body:    fmt.Sprintf("Utility locate information for %s is contradictory. Do not dig until the conflict is resolved.", site),
		}
	case domain.AlertTicketExpired:
		return Message{
			Subject: fmt.Sprintf("Locate ticket %s has expired", ref),
			Body:    fmt.Sprintf("Ticket for %s expired %s. Excavation must stop until a renewal ticket is clear.", site, expires),
		}
	case domain.AlertExpiringImminent:
		return Message{
			Subject: fmt.Sprintf("Locate ticket %s expires within hours", ref),
			Body:    fmt.Sprintf("Ticket for %s expires %s and is not clear.", site, expires),
		}
	case domain.AlertExpiringSoon:
		return Message{
			Subject: fmt.Sprintf("Locate ticket %s expires soon", ref),
			Body:    fmt.Sprintf("Ticket for %s expires %s.", site, expires),
		}
	case domain.AlertUpdateDue:
		due := ""
		if ticket.UpdateByDate != nil {
			due = ticket.UpdateByDate.In(loc).Format("Mon Jan 2 15:04 MST")
		}
		return Message{
			Subject: fmt.Sprintf("Update due on locate ticket %s", ref),
			Body:    fmt.Sprintf("Ticket for %s requires an update by %s.", site, due),
		}
	case domain.AlertResponseOverdue:
		return Message{
			Subject: fmt.Sprintf("Utility %s has not responded on ticket %s", occurrence, ref),
			Body:    fmt.Sprintf("The response window for %s closed without a reply. Contact the locate center before digging at %s.", occurrence, site),
		}
	case domain.AlertLegalDigReady:
		return Message{
			Subject: fmt.Sprintf("Locate ticket %s: legal dig date reached", ref),
			Body:    fmt.Sprintf("All utilities have responded for %s and the legal dig date %s has passed.", site, legal),
		}
	case domain.AlertAllClear:
		return Message{
			Subject: fmt.Sprintf("Locate ticket %s is clear", ref),
			Body:    fmt.Sprintf("All %d utilities responded clear or marked for %s. Legal dig date %s.", ticket.TotalUtilities, site, legal),
		}
	case domain.AlertRenewalReminder:
		return Message{
			Subject: fmt.Sprintf("Renew locate ticket %s", ref),
			Body:    fmt.Sprintf("Ticket for %s expires %s. File a renewal if work will continue.", site, expires),
		}
	case domain.AlertEscalation:
		return Message{
			Subject: fmt.Sprintf("ESCALATION: unacknowledged alert on ticket %s", ref),
			Body:    fmt.Sprintf("A critical alert for %s was not acknowledged in time.", site),
		}
	case domain.AlertDailyRadar:
		return Message{Subject: "Daily locate radar", Body: ""}
	}
	return Message{Subject: string(t), Body: ref}
}

// RenderDigest builds the daily radar body for an organization.
func RenderDigest(date string, tickets []domain.Ticket, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d active locate tickets\n", len(tickets))
	for _, t := range tickets {
		fmt.Fprintf(&b, "- %s %s %s risk=%d expires %s\n",
			t.TicketNumber, t.Status, t.Site.Address, t.RiskScore, t.ExpiresAt.In(loc).Format("Jan 2 15:04"))
	}
	return Message{Subject: "Daily locate radar " + date, Body: b.String()}
}
