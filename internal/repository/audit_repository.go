package repository

import (
	"context"

	"github.com/spec-kit/locate-service/internal/domain"
)

// AuditRepository appends alert and acknowledgement audit events.
type AuditRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByEntity(ctx context.Context, entity domain.AuditEntity, entityID string) ([]domain.AuditEvent, error)
}

type auditRepository struct {
	db Querier
}

// NewAuditRepository builds repository.
func NewAuditRepository(db Querier) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	const query = `
        INSERT INTO audit_events (id, entity_type, entity_id, ticket_id, action, actor_type, actor_id, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.EntityType,
		event.EntityID,
		event.TicketID,
		event.Action,
		event.ActorType,
		event.ActorID,
		event.Payload,
		event.CreatedAt,
	)
	return err
}

func (r *auditRepository) ListByEntity(ctx context.Context, entity domain.AuditEntity, entityID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, entity_type, entity_id, ticket_id, action, actor_type, actor_id, payload, created_at
        FROM audit_events WHERE entity_type=$1 AND entity_id=$2 ORDER BY created_at ASC, seq ASC`
	rows, err := r.db.Query(ctx, query, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.EntityType,
			&event.EntityID,
			&event.TicketID,
			&event.Action,
			&event.ActorType,
			&event.ActorID,
			&event.Payload,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
