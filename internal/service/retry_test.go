package service

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/repository/memory"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// interleavedTickets lets another writer commit a change to the ticket
// right before the transaction's own optimistic update, the way a sweep
// racing a request would. races counts how many updates get interleaved.
type interleavedTickets struct {
	repository.TicketRepository
	outside repository.Store
	races   *atomic.Int32
	race    func(*domain.Ticket)
}

func (r interleavedTickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	if r.races.Add(-1) >= 0 {
		current, err := r.outside.Tickets().GetByID(ctx, ticket.ID)
		if err != nil {
			return err
		}
		r.race(current)
		if err := r.outside.Tickets().Update(ctx, current); err != nil {
			return err
		}
	}
	return r.TicketRepository.Update(ctx, ticket)
}

type interleavedStore struct {
	repository.Store
	outside repository.Store
	races   *atomic.Int32
	race    func(*domain.Ticket)
}

func (s interleavedStore) Tickets() repository.TicketRepository {
	return interleavedTickets{TicketRepository: s.Store.Tickets(), outside: s.outside, races: s.races, race: s.race}
}

func (s interleavedStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(interleavedStore{Store: tx, outside: s.outside, races: s.races, race: s.race})
	})
}

func newInterleavedHarness(t *testing.T, race func(*domain.Ticket)) (*harness, *atomic.Int32) {
	races := &atomic.Int32{}
	h := newHarnessWithStore(t, func(mem *memory.Store) repository.Store {
		return interleavedStore{Store: mem, outside: mem, races: races, race: race}
	})
	return h, races
}

func TestResponseWriteRetriesAfterLosingRace(t *testing.T) {
	h, races := newInterleavedHarness(t, func(ticket *domain.Ticket) {
		ticket.RiskScore++
	})
	ticket := h.createTicket()

	races.Store(1)
	out := h.respond(ticket.ID, "GAS1", domain.ResponseNoFacilities)
	assert.Equal(t, domain.TicketStatusInProgress, out.Ticket.Status)
	assert.Equal(t, 1, out.Response.Revision)
	assert.Equal(t, 1, out.Ticket.RespondedUtilities)

	// The losing attempt was rolled back, so its writes appear once.
	var responses int
	history, err := h.tickets.ListHistory(h.ctx, testOrg, ticket.ID)
	require.NoError(t, err)
	for _, entry := range history {
		if entry.ChangeType == domain.ChangeTypeResponse {
			responses++
		}
	}
	assert.Equal(t, 1, responses)
	assert.Equal(t, 1, h.events.count(events.EventResponseRecorded))

	assert.Equal(t, domain.TicketStatusInProgress, h.ticket(ticket.ID).Status)
	// One update lost the race and one won it.
	assert.Equal(t, int32(-1), races.Load())
}

func TestResponseWriteSeesExpiryThatWonRace(t *testing.T) {
	h, races := newInterleavedHarness(t, func(ticket *domain.Ticket) {
		closed := ticket.ExpiresAt
		ticket.Status = domain.TicketStatusExpired
		ticket.ClosedAt = &closed
	})
	ticket := h.createTicket()

	races.Store(1)
	_, err := h.tickets.RecordUtilityResponse(h.ctx, testOrg, ticket.ID, ResponseInput{
		UtilityCode:  "GAS1",
		ResponseType: domain.ResponseMarked,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	assert.Equal(t, domain.TicketStatusExpired, h.ticket(ticket.ID).Status)
	response, err := h.store.Responses().GetByTicketAndUtility(h.ctx, ticket.ID, "GAS1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseStatusPending, response.Status)
	assert.Equal(t, 0, response.Revision)
}

func TestResponseWriteGivesUpAfterRepeatedRaces(t *testing.T) {
	h, races := newInterleavedHarness(t, func(ticket *domain.Ticket) {
		ticket.RiskScore++
	})
	ticket := h.createTicket()

	races.Store(100)
	_, err := h.tickets.RecordUtilityResponse(h.ctx, testOrg, ticket.ID, ResponseInput{
		UtilityCode:  "GAS1",
		ResponseType: domain.ResponseMarked,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Contains(t, err.Error(), "modified concurrently")

	response, err := h.store.Responses().GetByTicketAndUtility(h.ctx, ticket.ID, "GAS1")
	require.NoError(t, err)
	assert.Equal(t, 0, response.Revision)
}

// unreachableTickets fails every read made inside a transaction, as a lost
// database connection would.
type unreachableTickets struct {
	repository.TicketRepository
}

func (unreachableTickets) GetByID(context.Context, string) (*domain.Ticket, error) {
	return nil, &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}
}

type unreachableTx struct {
	repository.Store
}

func (s unreachableTx) Tickets() repository.TicketRepository {
	return unreachableTickets{TicketRepository: s.Store.Tickets()}
}

// switchableStore loses its connection inside transactions while broken
// is set.
type switchableStore struct {
	repository.Store
	broken *atomic.Bool
}

func (s switchableStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	if !s.broken.Load() {
		return s.Store.WithinTx(ctx, fn)
	}
	return s.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(unreachableTx{Store: tx})
	})
}

func TestExpireSweepAbortsWhenStoreUnreachable(t *testing.T) {
	var broken atomic.Bool
	h := newHarnessWithStore(t, func(mem *memory.Store) repository.Store {
		return switchableStore{Store: mem, broken: &broken}
	})
	first := h.createTicket()
	second := h.createTicket()

	broken.Store(true)
	h.clock.Set(first.ExpiresAt.Add(time.Minute))
	report, err := h.tickets.ExpireSweep(h.ctx)
	require.Error(t, err)
	var netErr net.Error
	assert.True(t, errors.As(err, &netErr))
	assert.Equal(t, 0, report.Flagged)
	assert.Equal(t, 0, h.events.count(events.EventTicketFlagged))

	for _, id := range []string{first.ID, second.ID} {
		stored := h.ticket(id)
		assert.False(t, stored.Flagged())
		assert.Equal(t, domain.TicketStatusPending, stored.Status)
	}

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	broken.Store(false)
	report, err = h.tickets.ExpireSweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Flagged)
}
