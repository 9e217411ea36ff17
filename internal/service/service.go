package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/clock"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/observability"
	"github.com/spec-kit/locate-service/internal/repository"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// Dependencies bundles collaborators shared by the engine services.
type Dependencies struct {
	Store         repository.Store
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	UpdateRetries int
	Concurrency   int
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Sweep       string    `json:"sweep"`
	StartedAt   time.Time `json:"started_at"`
	Scanned     int       `json:"scanned"`
	Changed     int       `json:"changed"`
	Emitted     int       `json:"emitted"`
	Suppressed  int       `json:"suppressed"`
	Deferred    int       `json:"deferred"`
	Redelivered int       `json:"redelivered"`
	Escalated   int       `json:"escalated"`
	Superseded  int       `json:"superseded"`
	Flagged     int       `json:"flagged"`
	Failed      int       `json:"failed"`
}

type base struct {
	store       repository.Store
	dispatcher  events.Dispatcher
	clock       clock.Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
	retries     int
	concurrency int
}

func newBase(deps Dependencies) base {
	b := base{
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		retries:     deps.UpdateRetries,
		concurrency: deps.Concurrency,
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.retries <= 0 {
		b.retries = 3
	}
	if b.concurrency <= 0 {
		b.concurrency = 4
	}
	return b
}

func (b *base) now() time.Time {
	return b.clock.Now().UTC()
}

// withTicketRetry runs fn in a transaction, retrying when an optimistic
// ticket update lost a race. fn must re-read everything it writes.
func (b *base) withTicketRetry(ctx context.Context, ticketID string, fn func(tx repository.Store) error) error {
	for attempt := 0; attempt <= b.retries; attempt++ {
		err := b.store.WithinTx(ctx, fn)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		b.logger.Debug("ticket version conflict, retrying",
			zap.String("ticket_id", ticketID), zap.Int("attempt", attempt+1))
	}
	return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
}

func (b *base) publish(ctx context.Context, evs ...events.Event) {
	if b.dispatcher == nil {
		return
	}
	for _, event := range evs {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = b.now()
		}
		_ = b.dispatcher.Publish(ctx, event)
	}
}

func (b *base) appendHistory(ctx context.Context, tx repository.Store, ticketID string, actor domain.Actor, change domain.TicketChangeType, oldValue, newValue map[string]any, at time.Time) error {
	entry := &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.ID,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     at,
	}
	return tx.History().Create(ctx, entry)
}

func (b *base) appendAudit(ctx context.Context, tx repository.Store, entity domain.AuditEntity, entityID, ticketID, action string, actor domain.Actor, payload map[string]any, at time.Time) error {
	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		EntityType: entity,
		EntityID:   entityID,
		TicketID:   ticketID,
		Action:     action,
		ActorType:  actor.Type,
		ActorID:    actor.ID,
		Payload:    payload,
		CreatedAt:  at,
	}
	return tx.Audit().Append(ctx, event)
}

// flagTicket marks a ticket for manual review after a per-ticket sweep
// failure. Failing to flag is logged; the sweep carries on either way.
func (b *base) flagTicket(ctx context.Context, ticketID string, actor domain.Actor, cause error) {
	b.logger.Error("ticket processing failed", zap.String("ticket_id", ticketID), zap.Error(cause))
	msg := cause.Error()
	now := b.now()
	err := b.withTicketRetry(ctx, ticketID, func(tx repository.Store) error {
		ticket, err := tx.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		old := map[string]any{"processing_error": ticket.ProcessingError}
		ticket.ProcessingError = &msg
		if ticket.FlaggedAt == nil {
			ticket.FlaggedAt = &now
		}
		ticket.UpdatedAt = now
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return b.appendHistory(ctx, tx, ticketID, actor, domain.ChangeTypeFlag, old,
			map[string]any{"processing_error": msg}, now)
	})
	if err != nil {
		b.logger.Error("flag ticket failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	b.publish(ctx, events.Event{
		Type:     events.EventTicketFlagged,
		TicketID: ticketID,
		Actor:    actor,
		Payload:  events.TicketFlaggedPayload{Error: msg},
	})
}

// ticketFor loads a ticket on behalf of organizationID. Another
// organization's ticket is reported as missing. An empty organization is an
// internal caller, such as a sweep, and sees every ticket.
func ticketFor(ctx context.Context, store repository.Store, ticketID, organizationID string) (*domain.Ticket, error) {
	ticket, err := store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if organizationID != "" && ticket.OrganizationID != organizationID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func notFound(err error, resource string, details map[string]any) error {
	if repository.IsNotFound(err) {
		return apperrors.NewNotFound(resource, details)
	}
	return err
}
