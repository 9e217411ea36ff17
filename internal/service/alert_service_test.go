package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/repository/memory"
)

// wednesday1000 is an hour after the default response window closes.
var wednesday1000 = time.Date(2024, time.March, 6, 10, 0, 0, 0, time.UTC)

func TestRunSweepIsIdempotent(t *testing.T) {
	h := newHarness(t)
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	ticket := h.createTicket()

	h.clock.Set(wednesday1000)
	first, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Scanned)
	assert.Equal(t, 3, first.Emitted)
	assert.Equal(t, 0, first.Deferred)
	assert.Equal(t, []domain.AlertType{
		domain.AlertResponseOverdue,
		domain.AlertResponseOverdue,
		domain.AlertDailyRadar,
	}, h.notifier.sentTypes())

	stored := h.alertsFor(ticket.ID)
	require.Len(t, stored, 2)
	for _, a := range stored {
		assert.NotNil(t, a.SentAt)
		assert.Equal(t, []string{"crew"}, a.Recipients)
	}

	second, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Emitted)
	assert.Equal(t, 0, second.Redelivered)
	assert.Len(t, h.alertsFor(ticket.ID), 2)
	assert.Len(t, h.notifier.sentTypes(), 3)

	due, err := h.alerts.ListDueAlerts(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunSweepDefersWhenBudgetSpent(t *testing.T) {
	h := newHarness(t)
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	h.createTicket()

	h.clock.Set(wednesday1000)
	h.notifier.budget = 1
	report, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	assert.Equal(t, 2, report.Deferred)
	assert.Len(t, h.notifier.sentTypes(), 1)

	// The alert that hit the spent budget stays claimed; the one after it
	// is still due.
	due, err := h.alerts.ListDueAlerts(h.ctx)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	h.notifier.budget = -1
	report, err = h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	assert.Equal(t, 0, report.Deferred)
	assert.Equal(t, 0, report.Redelivered)

	h.clock.Advance(3 * time.Minute)
	report, err = h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Emitted)
	assert.Equal(t, 1, report.Redelivered)
	assert.Len(t, h.notifier.sentTypes(), 3)
}

func TestRunSweepMostUrgentFirst(t *testing.T) {
	h := newHarness(t)
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	ticket := h.createTicket(UtilityInput{Code: "GAS1", Facility: domain.FacilityGas})

	// Three hours before expiry the imminent, soon and overdue rules all hold.
	h.clock.Set(ticket.ExpiresAt.Add(-3 * time.Hour))
	h.notifier.budget = 1
	report, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	assert.Equal(t, []domain.AlertType{domain.AlertExpiringImminent}, h.notifier.sentTypes())
}

func TestRunSweepDigestPerOrganizationPerDay(t *testing.T) {
	h := newHarness(t)
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	h.createTicket()

	// Before the digest hour nothing but per-ticket rules can fire.
	h.clock.Set(time.Date(2024, time.March, 5, 5, 0, 0, 0, time.UTC))
	report, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Emitted)

	h.clock.Set(time.Date(2024, time.March, 5, 6, 30, 0, 0, time.UTC))
	report, err = h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	assert.Equal(t, []domain.AlertType{domain.AlertDailyRadar}, h.notifier.sentTypes())

	h.clock.Advance(8 * time.Hour)
	report, err = h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Emitted)
}

func TestRunSweepRecordsDispatchFailure(t *testing.T) {
	h := newHarness(t)
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	ticket := h.createTicket()

	h.notifier.fail = true
	h.clock.Set(wednesday1000)
	report, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Emitted)

	for _, a := range h.alertsFor(ticket.ID) {
		assert.Nil(t, a.SentAt)
		require.NotNil(t, a.FailedAt)
		require.NotNil(t, a.FailureReason)
		assert.Equal(t, "sink down", *a.FailureReason)
		assert.Equal(t, 1, a.Attempts)
	}

	// A failed alert is never re-emitted under a new key.
	h.notifier.fail = false
	report, err = h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Emitted)
	assert.Len(t, h.alertsFor(ticket.ID), 2)
}

type failingResponses struct {
	repository.UtilityResponseRepository
	ticketID string
}

func (r failingResponses) ListByTicket(ctx context.Context, ticketID string) ([]domain.UtilityResponse, error) {
	if ticketID == r.ticketID {
		return nil, errors.New("corrupt evidence")
	}
	return r.UtilityResponseRepository.ListByTicket(ctx, ticketID)
}

type failingStore struct {
	repository.Store
	ticketID *string
}

func (s failingStore) Responses() repository.UtilityResponseRepository {
	return failingResponses{UtilityResponseRepository: s.Store.Responses(), ticketID: *s.ticketID}
}

func (s failingStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(failingStore{Store: tx, ticketID: s.ticketID})
	})
}

func TestRunSweepFlagsBrokenTicketAndContinues(t *testing.T) {
	broken := ""
	h := newHarnessWithStore(t, func(mem *memory.Store) repository.Store {
		return failingStore{Store: mem, ticketID: &broken}
	})
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	bad := h.createTicket()
	good := h.createTicket()
	broken = bad.ID

	h.clock.Set(wednesday1000)
	report, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Flagged)
	assert.Len(t, h.alertsFor(good.ID), 2)
	assert.Empty(t, h.alertsFor(bad.ID))

	flagged := h.ticket(bad.ID)
	require.True(t, flagged.Flagged())
	assert.Contains(t, *flagged.ProcessingError, "corrupt evidence")
	assert.False(t, h.ticket(good.ID).Flagged())
}

func TestEmitForTicketRespectsSubscriptions(t *testing.T) {
	h := newHarness(t)
	quiet := h.user("quiet", domain.RoleCrew)
	_, err := h.subs.UpsertSubscription(h.ctx, quiet, SubscriptionInput{
		Scope:      domain.ScopeOrganization,
		AlertTypes: []domain.AlertType{domain.AlertAllClear, domain.AlertConflictDetected},
		Channels:   []domain.Channel{domain.ChannelEmail},
		QuietMode:  true,
		Active:     true,
	})
	require.NoError(t, err)

	clear := h.createTicket(UtilityInput{Code: "TEL1", Facility: domain.FacilityTelecom})
	out := h.respond(clear.ID, "TEL1", domain.ResponseNoFacilities)
	require.NotNil(t, out.Alert)
	assert.Empty(t, out.Alert.Recipients)

	conflicted := h.createTicket(UtilityInput{Code: "GAS1", Facility: domain.FacilityGas})
	out = h.respond(conflicted.ID, "GAS1", domain.ResponseConflict)
	require.NotNil(t, out.Alert)
	assert.Equal(t, []string{"quiet"}, out.Alert.Recipients)
}

func TestRedeliverPicksUpThrottledExpiryAlert(t *testing.T) {
	h := newHarness(t)
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	ticket := h.createTicket(UtilityInput{Code: "GAS1", Facility: domain.FacilityGas})

	h.clock.Set(ticket.ExpiresAt.Add(time.Minute))
	h.notifier.budget = 0
	report, err := h.tickets.ExpireSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)

	var expired *domain.TicketAlert
	for _, a := range h.alertsFor(ticket.ID) {
		if a.AlertType == domain.AlertTicketExpired {
			a := a
			expired = &a
		}
	}
	require.NotNil(t, expired)
	assert.Nil(t, expired.SentAt)

	h.notifier.budget = -1
	h.clock.Advance(3 * time.Minute)
	sweep, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sweep.Redelivered, 1)

	stored, err := h.store.Alerts().GetByID(h.ctx, expired.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.SentAt)
}

// blindAlerts never reports an existing claim, so every candidate reaches
// the claim itself, as when another sweep claims it in between.
type blindAlerts struct {
	repository.AlertRepository
}

func (blindAlerts) ExistsByDedupKey(context.Context, string) (bool, error) {
	return false, nil
}

type blindStore struct {
	repository.Store
}

func (s blindStore) Alerts() repository.AlertRepository {
	return blindAlerts{AlertRepository: s.Store.Alerts()}
}

func TestLostClaimDoesNotSpendBudget(t *testing.T) {
	h := newHarnessWithStore(t, func(mem *memory.Store) repository.Store {
		return blindStore{Store: mem}
	})
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	ticket := h.createTicket()

	h.clock.Set(wednesday1000)
	first, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	require.Equal(t, 3, first.Emitted)

	h.notifier.budget = 1
	second, err := h.alerts.RunSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Emitted)
	assert.Equal(t, 3, second.Suppressed)
	assert.Equal(t, 0, second.Deferred)
	assert.Equal(t, 1, h.notifier.remaining())
	assert.Len(t, h.notifier.sentTypes(), 3)

	_, err = h.alerts.EmitForTicket(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.notifier.remaining())
}

func TestConcurrentSweepsClaimEachAlertOnce(t *testing.T) {
	h := newHarness(t)
	crew := h.user("crew", domain.RoleCrew)
	h.subscribe(crew)
	tickets := []*domain.Ticket{h.createTicket(), h.createTicket(), h.createTicket()}

	h.clock.Set(wednesday1000)
	reports := make([]SweepReport, 4)
	var g errgroup.Group
	for i := range reports {
		i := i
		g.Go(func() error {
			var err error
			reports[i], err = h.alerts.RunSweep(h.ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())

	emitted := 0
	for _, r := range reports {
		emitted += r.Emitted
	}
	// Two overdue utilities per ticket plus one organization digest.
	assert.Equal(t, 7, emitted)
	assert.Len(t, h.notifier.sentTypes(), 7)

	seen := map[string]bool{}
	for _, ticket := range tickets {
		alerts := h.alertsFor(ticket.ID)
		assert.Len(t, alerts, 2)
		for _, a := range alerts {
			assert.False(t, seen[a.DedupKey], "duplicate alert %s", a.DedupKey)
			seen[a.DedupKey] = true
		}
	}
}
