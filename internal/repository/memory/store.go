// Package memory is an in-process repository.Store with the same claim and
// compare-and-set semantics as the Postgres store. It backs tests and runs
// the service when no database is configured.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/repository"
)

type tables struct {
	tickets       map[string]domain.Ticket
	responses     map[string]domain.UtilityResponse
	history       []domain.TicketHistory
	conflicts     map[string]domain.Conflict
	alerts        map[string]domain.TicketAlert
	acks          map[string]domain.AlertAcknowledgement
	subscriptions map[string]domain.AlertSubscription
	users         map[string]domain.User
	audit         []domain.AuditEvent
}

// Store is safe for concurrent use. Transactions are serialized and roll
// back their own writes on error.
type Store struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	data *tables
	undo *[]func()
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		mu:   &sync.Mutex{},
		txMu: &sync.Mutex{},
		data: &tables{
			tickets:       map[string]domain.Ticket{},
			responses:     map[string]domain.UtilityResponse{},
			conflicts:     map[string]domain.Conflict{},
			alerts:        map[string]domain.TicketAlert{},
			acks:          map[string]domain.AlertAcknowledgement{},
			subscriptions: map[string]domain.AlertSubscription{},
			users:         map[string]domain.User{},
		},
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }
func (s *Store) Responses() repository.UtilityResponseRepository { return responseRepo{s} }
func (s *Store) History() repository.TicketHistoryRepository { return historyRepo{s} }
func (s *Store) Conflicts() repository.ConflictRepository { return conflictRepo{s} }
func (s *Store) Alerts() repository.AlertRepository { return alertRepo{s} }
func (s *Store) Acknowledgements() repository.AcknowledgementRepository { return ackRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository { return subscriptionRepo{s} }
func (s *Store) Users() repository.UserRepository { return userRepo{s} }
func (s *Store) Audit() repository.AuditRepository { return auditRepo{s} }

// WithinTx runs fn holding the transaction lock. If fn fails, every write
// it made is undone.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.undo != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	var undo []func()
	tx := &Store{mu: s.mu, txMu: s.txMu, data: s.data, undo: &undo}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// record registers an undo step. Callers hold mu.
func (s *Store) record(fn func()) {
	if s.undo != nil {
		*s.undo = append(*s.undo, fn)
	}
}

func restoreKey[T any](m map[string]T, key string) func() {
	old, existed := m[key]
	return func() {
		if existed {
			m[key] = old
		} else {
			delete(m, key)
		}
	}
}

func cloneStrings(in []string) []string {
	return slices.Clone(in)
}
