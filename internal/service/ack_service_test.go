package service

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// conflictAlert raises a conflict on a fresh ticket and returns the alert.
func conflictAlert(t *testing.T, h *harness) (*domain.Ticket, *domain.TicketAlert) {
	t.Helper()
	ticket := h.createTicket()
	out := h.respond(ticket.ID, "GAS1", domain.ResponseConflict)
	require.NotNil(t, out.Alert)
	require.Equal(t, domain.AlertConflictDetected, out.Alert.AlertType)
	require.True(t, out.Alert.RequiresAck)
	return ticket, out.Alert
}

func TestConflictAlertCreatesAckRows(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	h.subscribe(h.user("lead", domain.RoleCrew))
	_, alert := conflictAlert(t, h)

	rows, err := h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "crew", rows[0].UserID)
	assert.Equal(t, "lead", rows[1].UserID)
	for _, r := range rows {
		assert.Equal(t, domain.AckStatusSent, r.Status)
		assert.Equal(t, monday0900.Add(30*time.Minute), r.AckDeadline)
	}

	_, err = h.acks.ListAcknowledgements(h.ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAcknowledgeAlertOutcomes(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	_, alert := conflictAlert(t, h)

	row, err := h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", domain.AckActionOpen)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusOpened, row.Status)

	h.clock.Advance(5 * time.Minute)
	row, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", domain.AckActionAcknowledge)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusAcknowledged, row.Status)
	require.NotNil(t, row.AcknowledgedAt)
	assert.Equal(t, monday0900.Add(5*time.Minute), *row.AcknowledgedAt)

	_, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", domain.AckActionAcknowledge)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyAcknowledged))

	row, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", domain.AckActionOpen)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusAcknowledged, row.Status)

	_, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "stranger", domain.AckActionAcknowledge)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", "SNOOZE")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	// Acknowledged rows never escalate.
	h.clock.Advance(time.Hour)
	report, err := h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Escalated)
}

func TestRecordDeliveryOnlyMovesForward(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	_, alert := conflictAlert(t, h)

	update, err := h.acks.RecordDelivery(h.ctx, alert.ID, "crew", domain.AckStatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, update.Alert.DeliveredAt)
	require.NotNil(t, update.Acknowledgement)
	assert.Equal(t, domain.AckStatusDelivered, update.Acknowledgement.Status)
	firstDelivery := *update.Alert.DeliveredAt

	h.clock.Advance(time.Minute)
	update, err = h.acks.RecordDelivery(h.ctx, alert.ID, "crew", domain.AckStatusOpened)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusOpened, update.Acknowledgement.Status)
	assert.Equal(t, firstDelivery, *update.Alert.DeliveredAt)

	update, err = h.acks.RecordDelivery(h.ctx, alert.ID, "crew", domain.AckStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusOpened, update.Acknowledgement.Status)

	_, err = h.acks.RecordDelivery(h.ctx, alert.ID, "crew", domain.AckStatusAcknowledged)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", domain.AckActionAcknowledge)
	require.NoError(t, err)
	update, err = h.acks.RecordDelivery(h.ctx, alert.ID, "crew", domain.AckStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusAcknowledged, update.Acknowledgement.Status)
}

func TestRecordDeliveryWithoutAck(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	ticket := h.createTicket(UtilityInput{Code: "TEL1", Facility: domain.FacilityTelecom})
	out := h.respond(ticket.ID, "TEL1", domain.ResponseNoFacilities)
	require.NotNil(t, out.Alert)
	require.False(t, out.Alert.RequiresAck)

	update, err := h.acks.RecordDelivery(h.ctx, out.Alert.ID, "crew", domain.AckStatusOpened)
	require.NoError(t, err)
	assert.NotNil(t, update.Alert.DeliveredAt)
	assert.Nil(t, update.Acknowledgement)
}

func TestEscalationSweepEscalatesOnce(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	h.user("boss", domain.RoleSupervisor)
	ticket, alert := conflictAlert(t, h)

	h.clock.Advance(29 * time.Minute)
	report, err := h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, report.Escalated)

	h.clock.Advance(2 * time.Minute)
	report, err = h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Escalated)

	rows, err := h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.AckStatusEscalated, rows[0].Status)
	require.NotNil(t, rows[0].EscalatedTo)
	assert.Equal(t, "boss", *rows[0].EscalatedTo)
	require.NotNil(t, rows[0].EscalatedAt)

	var escalations []domain.TicketAlert
	for _, a := range h.alertsFor(ticket.ID) {
		if a.AlertType == domain.AlertEscalation {
			escalations = append(escalations, a)
		}
	}
	require.Len(t, escalations, 1)
	assert.Equal(t, []string{"boss"}, escalations[0].Recipients)
	assert.False(t, escalations[0].RequiresAck)
	assert.NotNil(t, escalations[0].SentAt)
	assert.Equal(t, 1, h.events.count(events.EventAlertEscalated))

	last := h.notifier.targets[len(h.notifier.targets)-1]
	require.NotEmpty(t, last)
	for _, target := range last {
		assert.Equal(t, "boss", target.UserID)
	}

	again, err := h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Escalated)

	_, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", domain.AckActionAcknowledge)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAckExpired))
}

func TestEscalationWithoutSupervisorsTargetsRole(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	_, alert := conflictAlert(t, h)

	h.clock.Advance(time.Hour)
	report, err := h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)

	rows, err := h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, rows[0].EscalatedTo)
	assert.Equal(t, "role:SUPERVISOR", *rows[0].EscalatedTo)
}

func TestFailedDeliveryStillEscalates(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	h.user("boss", domain.RoleSupervisor)
	h.notifier.fail = true
	_, alert := conflictAlert(t, h)
	require.NotNil(t, alert.FailedAt)
	assert.Equal(t, 1, h.events.count(events.EventAlertFailed))

	rows, err := h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "crew", rows[0].UserID)
	assert.Equal(t, domain.AckStatusSent, rows[0].Status)

	h.notifier.fail = false
	h.clock.Advance(31 * time.Minute)
	report, err := h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)

	rows, err = h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusEscalated, rows[0].Status)
	require.NotNil(t, rows[0].EscalatedTo)
	assert.Equal(t, "boss", *rows[0].EscalatedTo)
}

func TestUnroutedAlertEscalatesImmediately(t *testing.T) {
	h := newHarness(t)
	h.user("boss", domain.RoleSupervisor)
	ticket, alert := conflictAlert(t, h)
	assert.Empty(t, alert.Recipients)

	rows, err := h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var escalations []domain.TicketAlert
	for _, a := range h.alertsFor(ticket.ID) {
		if a.AlertType == domain.AlertEscalation {
			escalations = append(escalations, a)
		}
	}
	require.Len(t, escalations, 1)
	assert.Equal(t, []string{"boss"}, escalations[0].Recipients)
	assert.NotNil(t, escalations[0].SentAt)
	assert.Contains(t, escalations[0].Subject, "no recipients")
	assert.Equal(t, 1, h.events.count(events.EventAlertEscalated))

	sent := h.notifier.sentTypes()
	idx := slices.Index(sent, domain.AlertEscalation)
	require.GreaterOrEqual(t, idx, 0)
	require.NotEmpty(t, h.notifier.targets[idx])
	assert.Equal(t, "boss", h.notifier.targets[idx][0].UserID)

	// Later sweeps neither re-emit the alert nor escalate it again.
	h.clock.Advance(time.Hour)
	report, err := h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Escalated)
	_, err = h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.events.count(events.EventAlertEscalated))
}

func TestPartialDeliveryKeepsRowForUnreachedRecipient(t *testing.T) {
	h := newHarness(t)
	h.subscribe(h.user("crew", domain.RoleCrew))
	h.subscribe(h.user("night", domain.RoleCrew))
	h.user("boss", domain.RoleSupervisor)
	h.notifier.unreachable = map[string]bool{"night": true}
	_, alert := conflictAlert(t, h)
	assert.NotNil(t, alert.SentAt)
	assert.Nil(t, alert.FailedAt)
	assert.Equal(t, 1, h.events.count(events.EventAlertFailed))
	assert.Equal(t, 1, h.events.count(events.EventAlertEmitted))

	rows, err := h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "crew", rows[0].UserID)
	assert.Equal(t, "night", rows[1].UserID)

	_, err = h.acks.AcknowledgeAlert(h.ctx, alert.ID, "crew", domain.AckActionAcknowledge)
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)
	report, err := h.acks.EscalationSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Escalated)

	rows, err = h.acks.ListAcknowledgements(h.ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AckStatusAcknowledged, rows[0].Status)
	assert.Equal(t, domain.AckStatusEscalated, rows[1].Status)
}
