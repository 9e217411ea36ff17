package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes the mutable columns if ticket.Version still matches and
	// bumps the version. Deadlines are never written after Create.
	Update(ctx context.Context, ticket *domain.Ticket) error
	RecordAlert(ctx context.Context, ticketID string, at time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListActive(ctx context.Context) ([]domain.Ticket, error)
	ListFlagged(ctx context.Context, organizationID string) ([]domain.Ticket, error)
	ListRenewals(ctx context.Context, parentID string) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db Querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db Querier) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, ticket_number, organization_id, project_id, created_by, jurisdiction, ticket_type,
               work_type, site_address, site_lat, site_lng, status, legal_dig_date, expires_at, update_by_date,
               risk_score, total_utilities, responded_utilities, alert_count, last_alert_sent_at,
               parent_ticket_id, processing_error, flagged_at, version, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, ticket_number, organization_id, project_id, created_by, jurisdiction, ticket_type,
            work_type, site_address, site_lat, site_lng, status, legal_dig_date, expires_at, update_by_date,
            risk_score, total_utilities, responded_utilities, parent_ticket_id, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1,$20,$20)`
	lat, lng := splitPoint(ticket.Site.Point)
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.OrganizationID,
		ticket.ProjectID,
		ticket.CreatedBy,
		ticket.Jurisdiction,
		ticket.Type,
		ticket.WorkType,
		ticket.Site.Address,
		lat,
		lng,
		ticket.Status,
		ticket.LegalDigDate,
		ticket.ExpiresAt,
		ticket.UpdateByDate,
		ticket.RiskScore,
		ticket.TotalUtilities,
		ticket.RespondedUtilities,
		ticket.ParentTicketID,
		ticket.CreatedAt,
	)
	if err != nil {
		return err
	}
	ticket.Version = 1
	ticket.UpdatedAt = ticket.CreatedAt
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, risk_score=$2, total_utilities=$3, responded_utilities=$4,
            processing_error=$5, flagged_at=$6, closed_at=$7, updated_at=$8, version=version+1
        WHERE id=$9 AND version=$10`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Status,
		ticket.RiskScore,
		ticket.TotalUtilities,
		ticket.RespondedUtilities,
		ticket.ProcessingError,
		ticket.FlaggedAt,
		ticket.ClosedAt,
		ticket.UpdatedAt,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	ticket.Version++
	return nil
}

func (r *ticketRepository) RecordAlert(ctx context.Context, ticketID string, at time.Time) error {
	const query = `
        UPDATE tickets SET alert_count=alert_count+1, last_alert_sent_at=$2 WHERE id=$1`
	cmd, err := r.db.Exec(ctx, query, ticketID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1`, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets
        WHERE status NOT IN ('EXPIRED','CANCELLED') ORDER BY expires_at ASC, id ASC`)
}

func (r *ticketRepository) ListFlagged(ctx context.Context, organizationID string) ([]domain.Ticket, error) {
	if organizationID == "" {
		return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets
            WHERE flagged_at IS NOT NULL ORDER BY flagged_at DESC`)
	}
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets
        WHERE flagged_at IS NOT NULL AND organization_id=$1 ORDER BY flagged_at DESC`, organizationID)
}

func (r *ticketRepository) ListRenewals(ctx context.Context, parentID string) ([]domain.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets
        WHERE parent_ticket_id=$1 ORDER BY created_at ASC`, parentID)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		lat, lng *float64
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.OrganizationID,
		&ticket.ProjectID,
		&ticket.CreatedBy,
		&ticket.Jurisdiction,
		&ticket.Type,
		&ticket.WorkType,
		&ticket.Site.Address,
		&lat,
		&lng,
		&ticket.Status,
		&ticket.LegalDigDate,
		&ticket.ExpiresAt,
		&ticket.UpdateByDate,
		&ticket.RiskScore,
		&ticket.TotalUtilities,
		&ticket.RespondedUtilities,
		&ticket.AlertCount,
		&ticket.LastAlertSentAt,
		&ticket.ParentTicketID,
		&ticket.ProcessingError,
		&ticket.FlaggedAt,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	ticket.Site.Point = joinPoint(lat, lng)
	return &ticket, nil
}

func splitPoint(p *domain.GeoPoint) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func joinPoint(lat, lng *float64) *domain.GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	return &domain.GeoPoint{Lat: *lat, Lng: *lng}
}
