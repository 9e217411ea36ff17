package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/locate-service/internal/alerting"
	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/clock"
	"github.com/spec-kit/locate-service/internal/deadline"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/notify"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/repository/memory"
)

const (
	testOrg          = "org-1"
	testJurisdiction = "TS"
)

// monday0900 is Monday 4 March 2024, 09:00 UTC.
var monday0900 = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu          sync.Mutex
	budget      int
	fail        bool
	unreachable map[string]bool
	deliveries  []notify.Contract
	targets     [][]notify.Target
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{budget: -1}
}

func (n *fakeNotifier) Allow(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.budget < 0 {
		return true, nil
	}
	if n.budget == 0 {
		return false, nil
	}
	n.budget--
	return true, nil
}

func (n *fakeNotifier) Deliver(_ context.Context, base notify.Contract, targets []notify.Target) notify.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, base)
	n.targets = append(n.targets, targets)
	res := notify.Result{Attempts: len(targets), CompletedAt: time.Now()}
	for _, target := range targets {
		if n.fail || n.unreachable[target.UserID] {
			res.Failed = append(res.Failed, target)
			res.LastError = errors.New("sink down")
			continue
		}
		res.Delivered = append(res.Delivered, target)
	}
	return res
}

func (n *fakeNotifier) remaining() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.budget
}

func (n *fakeNotifier) sentTypes() []domain.AlertType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.AlertType, 0, len(n.deliveries))
	for _, d := range n.deliveries {
		out = append(out, d.AlertType)
	}
	return out
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *memory.Store
	clock     *clock.FakeClock
	notifier  *fakeNotifier
	events    *eventLog
	tickets   *TicketService
	alerts    *AlertService
	acks      *AckService
	conflicts *ConflictService
	subs      *SubscriptionService
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) Subscribe(events.EventType, events.EventHandler) {}

func (l *eventLog) count(t events.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, nil)
}

// newHarnessWithStore lets a test wrap the memory store; wrap may be nil.
func newHarnessWithStore(t *testing.T, wrap func(*memory.Store) repository.Store) *harness {
	t.Helper()
	mem := memory.NewStore()
	var store repository.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}

	registry, err := calendar.NewRegistry(
		[]calendar.Jurisdiction{{Code: testJurisdiction, TimeZone: "UTC"}},
		calendar.StaticSource{}, 8)
	require.NoError(t, err)
	calc := deadline.NewCalculator(registry, map[string]deadline.Rules{
		testJurisdiction: {
			NoticeBusinessDays:   2,
			ValidityDays:         10,
			ValidityBusinessDays: true,
			ResponseBusinessDays: 2,
			UpdateAfterDays:      20,
			EmergencyNotice:      2 * time.Hour,
		},
	})
	rules, err := alerting.NewRuleSet(1, alerting.DefaultRules())
	require.NoError(t, err)

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    mem,
		clock:    clock.Fake(monday0900),
		notifier: newFakeNotifier(),
		events:   &eventLog{},
	}
	deps := Dependencies{Store: store, Dispatcher: h.events, Clock: h.clock, Concurrency: 2}
	h.alerts = NewAlertService(AlertDependencies{Dependencies: deps, Rules: rules, Notifier: h.notifier, Calendars: registry})
	h.tickets = NewTicketService(TicketDependencies{Dependencies: deps, Deadlines: calc, Alerts: h.alerts})
	h.acks = NewAckService(AckDependencies{Dependencies: deps, Alerts: h.alerts})
	h.conflicts = NewConflictService(ConflictDependencies{Dependencies: deps, Alerts: h.alerts})
	h.subs = NewSubscriptionService(deps)
	return h
}

func (h *harness) user(id string, role domain.UserRole) *domain.User {
	h.t.Helper()
	u := &domain.User{
		ID:             id,
		OrganizationID: testOrg,
		Name:           id,
		Email:          id + "@example.com",
		Phone:          "+1555" + id,
		Role:           role,
		Active:         true,
		CreatedAt:      h.clock.Now(),
	}
	require.NoError(h.t, h.store.Users().Create(h.ctx, u))
	return u
}

// subscribe opts a user in to every alert type by email.
func (h *harness) subscribe(u *domain.User) {
	h.t.Helper()
	types := make([]domain.AlertType, 0)
	for _, r := range alerting.DefaultRules() {
		types = append(types, r.AlertType)
	}
	types = append(types, domain.AlertTicketExpired)
	_, err := h.subs.UpsertSubscription(h.ctx, u, SubscriptionInput{
		Scope:      domain.ScopeOrganization,
		AlertTypes: types,
		Channels:   []domain.Channel{domain.ChannelEmail},
		Active:     true,
	})
	require.NoError(h.t, err)
}

func (h *harness) createTicket(utilities ...UtilityInput) *domain.Ticket {
	h.t.Helper()
	if len(utilities) == 0 {
		utilities = []UtilityInput{
			{Code: "GAS1", Name: "City Gas", Facility: domain.FacilityGas},
			{Code: "ELEC1", Name: "Power Co", Facility: domain.FacilityElectric},
		}
	}
	ticket, err := h.tickets.CreateTicket(h.ctx, TicketCreateInput{
		OrganizationID: testOrg,
		Jurisdiction:   testJurisdiction,
		Type:           domain.TicketTypeStandard,
		WorkType:       domain.WorkTypeTrenching,
		Address:        "1 Main St",
		Utilities:      utilities,
	})
	require.NoError(h.t, err)
	return ticket
}

func (h *harness) respond(ticketID, code string, rt domain.ResponseType, colors ...domain.MarkColor) *ResponseOutcome {
	h.t.Helper()
	out, err := h.tickets.RecordUtilityResponse(h.ctx, testOrg, ticketID, ResponseInput{
		UtilityCode:  code,
		ResponseType: rt,
		Evidence:     domain.Evidence{MarkColors: colors},
	})
	require.NoError(h.t, err)
	return out
}

func (h *harness) ticket(id string) *domain.Ticket {
	h.t.Helper()
	t, err := h.store.Tickets().GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return t
}

func (h *harness) alertsFor(ticketID string) []domain.TicketAlert {
	h.t.Helper()
	alerts, err := h.store.Alerts().ListByTicket(h.ctx, ticketID)
	require.NoError(h.t, err)
	return alerts
}

func statusSteps(t *testing.T, h *harness, ticketID string) []domain.TicketStatus {
	t.Helper()
	history, err := h.tickets.ListHistory(h.ctx, testOrg, ticketID)
	require.NoError(t, err)
	var out []domain.TicketStatus
	for _, entry := range history {
		if entry.ChangeType != domain.ChangeTypeStatus {
			continue
		}
		if s, ok := entry.NewValue["status"].(domain.TicketStatus); ok {
			out = append(out, s)
		}
	}
	return out
}
