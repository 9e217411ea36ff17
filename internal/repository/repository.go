package repository

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when an optimistic update lost a race.
var ErrVersionConflict = errors.New("repository: version conflict")

// Querier is the subset of pgx shared by a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories of one unit of work.
type Store interface {
	Tickets() TicketRepository
	Responses() UtilityResponseRepository
	History() TicketHistoryRepository
	Conflicts() ConflictRepository
	Alerts() AlertRepository
	Acknowledgements() AcknowledgementRepository
	Subscriptions() SubscriptionRepository
	Users() UserRepository
	Audit() AuditRepository
	// WithinTx runs fn against a transactional view of the store. Nested
	// calls join the outer transaction.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type pgStore struct {
	pool *pgxpool.Pool
	db   Querier
}

// NewPostgresStore returns a Store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

func (s *pgStore) Tickets() TicketRepository { return &ticketRepository{db: s.db} }
func (s *pgStore) Responses() UtilityResponseRepository { return &utilityResponseRepository{db: s.db} }
func (s *pgStore) History() TicketHistoryRepository { return &ticketHistoryRepository{db: s.db} }
func (s *pgStore) Conflicts() ConflictRepository { return &conflictRepository{db: s.db} }
func (s *pgStore) Alerts() AlertRepository { return &alertRepository{db: s.db} }
func (s *pgStore) Acknowledgements() AcknowledgementRepository { return &acknowledgementRepository{db: s.db} }
func (s *pgStore) Subscriptions() SubscriptionRepository { return &subscriptionRepository{db: s.db} }
func (s *pgStore) Users() UserRepository { return &userRepository{db: s.db} }
func (s *pgStore) Audit() AuditRepository { return &auditRepository{db: s.db} }

func (s *pgStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgStore{db: tx})
	})
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUnavailable reports whether err means the store could not be reached
// at all, as opposed to a problem with one row.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
