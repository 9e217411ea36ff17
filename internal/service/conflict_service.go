package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/conflict"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/repository"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// ConflictService records and resolves contradictory locate information.
type ConflictService struct {
	base
	alerts *AlertService
}

// ConflictDependencies bundles collaborators of the conflict service.
type ConflictDependencies struct {
	Dependencies
	Alerts *AlertService
}

// NewConflictService constructs the service.
func NewConflictService(deps ConflictDependencies) *ConflictService {
	return &ConflictService{base: newBase(deps.Dependencies), alerts: deps.Alerts}
}

// ResolveInput captures a human resolution decision.
type ResolveInput struct {
	ResolvedBy string
	Notes      string
}

// ListConflicts returns every conflict recorded on a ticket.
func (s *ConflictService) ListConflicts(ctx context.Context, organizationID, ticketID string) ([]domain.Conflict, error) {
	if _, err := ticketFor(ctx, s.store, ticketID, organizationID); err != nil {
		return nil, err
	}
	return s.store.Conflicts().ListByTicket(ctx, ticketID)
}

// ResolveConflict records the resolution and re-evaluates every response.
// The ticket only leaves CONFLICT if nothing else is open, and only reaches
// CLEAR if the responses say so.
func (s *ConflictService) ResolveConflict(ctx context.Context, organizationID, conflictID string, input ResolveInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.ResolvedBy) == "" {
		return nil, apperrors.NewValidationError("resolved_by is required", nil)
	}
	actor := domain.UserActor(input.ResolvedBy)
	now := s.now()

	var (
		ticketID string
		resolved *domain.Conflict
		result   *transition
	)
	lookup, err := s.store.Conflicts().GetByID(ctx, conflictID)
	if err != nil {
		return nil, notFound(err, "conflict", map[string]any{"conflict_id": conflictID})
	}
	ticketID = lookup.TicketID
	if _, err := ticketFor(ctx, s.store, ticketID, organizationID); err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NewNotFound("conflict", map[string]any{"conflict_id": conflictID})
		}
		return nil, err
	}

	err = s.withTicketRetry(ctx, ticketID, func(tx repository.Store) error {
		c, err := tx.Conflicts().GetByID(ctx, conflictID)
		if err != nil {
			return err
		}
		if !c.Open() {
			return apperrors.NewConflict("conflict already resolved", map[string]any{"conflict_id": conflictID})
		}
		c.ConflictResolvedAt = &now
		c.ResolvedBy = &input.ResolvedBy
		notes := strings.TrimSpace(input.Notes)
		c.ResolutionNotes = &notes
		ok, err := tx.Conflicts().Resolve(ctx, c)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewConflict("conflict already resolved", map[string]any{"conflict_id": conflictID})
		}
		err = s.appendHistory(ctx, tx, ticketID, actor, domain.ChangeTypeResolution,
			map[string]any{"conflict_id": c.ID, "kind": c.Kind},
			map[string]any{"resolved_by": input.ResolvedBy, "notes": notes},
			now)
		if err != nil {
			return err
		}

		ticket, err := tx.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status.Terminal() {
			resolved = c
			result = &transition{ticket: ticket, from: ticket.Status}
			return nil
		}
		result, err = s.reconcile(ctx, tx, ticket, actor, "conflict_resolved", now)
		resolved = c
		return err
	})
	if err != nil {
		return nil, err
	}

	evs := []events.Event{{
		Type:     events.EventConflictResolved,
		TicketID: ticketID,
		Actor:    actor,
		Payload:  events.ConflictPayload{ConflictID: resolved.ID, Kind: resolved.Kind, Reason: resolved.Reason},
	}}
	s.publish(ctx, append(evs, result.events(actor)...)...)

	if s.alerts != nil && !result.ticket.Status.Terminal() {
		if _, err := s.alerts.EmitForTicket(ctx, ticketID); err != nil {
			s.logger.Warn("alert evaluation after resolution failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	return result.ticket, nil
}

// detectConflicts persists any finding not seen before. Re-detecting the
// same evidence is a no-op.
func (b *base) detectConflicts(ctx context.Context, tx repository.Store, ticketID string, responses []domain.UtilityResponse, actor domain.Actor, now time.Time) ([]domain.Conflict, error) {
	var created []domain.Conflict
	for _, f := range conflict.Detect(responses) {
		row := &domain.Conflict{
			ID:           uuid.NewString(),
			TicketID:     ticketID,
			Kind:         f.Kind,
			Fingerprint:  f.Fingerprint,
			Reason:       f.Reason,
			UtilityCodes: f.UtilityCodes,
			EvidenceRefs: f.EvidenceRefs,
			DetectedAt:   now,
		}
		isNew, err := tx.Conflicts().CreateIfAbsent(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("record conflict: %w", err)
		}
		if !isNew {
			continue
		}
		err = b.appendHistory(ctx, tx, ticketID, actor, domain.ChangeTypeConflict, nil,
			map[string]any{
				"conflict_id": row.ID,
				"kind":        row.Kind,
				"reason":      row.Reason,
				"utilities":   row.UtilityCodes,
			}, now)
		if err != nil {
			return nil, err
		}
		created = append(created, *row)
	}
	return created, nil
}
