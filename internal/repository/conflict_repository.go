package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

// ConflictRepository persists detected conflicts. (ticket_id, fingerprint)
// is unique, so re-detecting the same evidence never adds a row.
type ConflictRepository interface {
	CreateIfAbsent(ctx context.Context, conflict *domain.Conflict) (bool, error)
	Resolve(ctx context.Context, conflict *domain.Conflict) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Conflict, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Conflict, error)
	ListOpenByTicket(ctx context.Context, ticketID string) ([]domain.Conflict, error)
}

type conflictRepository struct {
	db Querier
}

// NewConflictRepository builds repository.
func NewConflictRepository(db Querier) ConflictRepository {
	return &conflictRepository{db: db}
}

const conflictColumns = `id, ticket_id, kind, fingerprint, reason, utility_codes, evidence_refs, detected_at,
               resolved_at, resolved_by, resolution_notes`

func (r *conflictRepository) CreateIfAbsent(ctx context.Context, conflict *domain.Conflict) (bool, error) {
	const query = `
        INSERT INTO conflicts (id, ticket_id, kind, fingerprint, reason, utility_codes, evidence_refs, detected_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (ticket_id, fingerprint) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query,
		conflict.ID,
		conflict.TicketID,
		conflict.Kind,
		conflict.Fingerprint,
		conflict.Reason,
		nonNil(conflict.UtilityCodes),
		nonNil(conflict.EvidenceRefs),
		conflict.DetectedAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *conflictRepository) Resolve(ctx context.Context, conflict *domain.Conflict) (bool, error) {
	const query = `
        UPDATE conflicts SET resolved_at=$1, resolved_by=$2, resolution_notes=$3
        WHERE id=$4 AND resolved_at IS NULL`
	cmd, err := r.db.Exec(ctx, query,
		conflict.ConflictResolvedAt,
		conflict.ResolvedBy,
		conflict.ResolutionNotes,
		conflict.ID,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *conflictRepository) GetByID(ctx context.Context, id string) (*domain.Conflict, error) {
	return scanConflict(r.db.QueryRow(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id=$1`, id))
}

func (r *conflictRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Conflict, error) {
	return r.list(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE ticket_id=$1 ORDER BY detected_at ASC, id ASC`, ticketID)
}

func (r *conflictRepository) ListOpenByTicket(ctx context.Context, ticketID string) ([]domain.Conflict, error) {
	return r.list(ctx, `SELECT `+conflictColumns+` FROM conflicts
        WHERE ticket_id=$1 AND resolved_at IS NULL ORDER BY detected_at ASC, id ASC`, ticketID)
}

func (r *conflictRepository) list(ctx context.Context, query string, args ...any) ([]domain.Conflict, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Conflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *conflict)
	}
	return result, rows.Err()
}

func scanConflict(row pgx.Row) (*domain.Conflict, error) {
	var conflict domain.Conflict
	if err := row.Scan(
		&conflict.ID,
		&conflict.TicketID,
		&conflict.Kind,
		&conflict.Fingerprint,
		&conflict.Reason,
		&conflict.UtilityCodes,
		&conflict.EvidenceRefs,
		&conflict.DetectedAt,
		&conflict.ConflictResolvedAt,
		&conflict.ResolvedBy,
		&conflict.ResolutionNotes,
	); err != nil {
		return nil, err
	}
	return &conflict, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
