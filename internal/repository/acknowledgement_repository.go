package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

// AcknowledgementRepository persists per-recipient acknowledgement rows.
type AcknowledgementRepository interface {
	Create(ctx context.Context, ack *domain.AlertAcknowledgement) error
	// CompareAndSetStatus writes ack if the stored status still equals from.
	CompareAndSetStatus(ctx context.Context, ack *domain.AlertAcknowledgement, from domain.AckStatus) (bool, error)
	GetByAlertAndUser(ctx context.Context, alertID, userID string) (*domain.AlertAcknowledgement, error)
	ListByAlert(ctx context.Context, alertID string) ([]domain.AlertAcknowledgement, error)
	// ListOverdue returns open rows whose ack deadline is at or before now.
	ListOverdue(ctx context.Context, now time.Time) ([]domain.AlertAcknowledgement, error)
	ListOpenByTicket(ctx context.Context, ticketID string) ([]domain.AlertAcknowledgement, error)
}

type acknowledgementRepository struct {
	db Querier
}

// NewAcknowledgementRepository builds repository.
func NewAcknowledgementRepository(db Querier) AcknowledgementRepository {
	return &acknowledgementRepository{db: db}
}

const ackColumns = `id, alert_id, ticket_id, user_id, status, ack_deadline, acknowledged_at, escalated_to,
               escalation_reason, escalated_at, created_at, updated_at`

func (r *acknowledgementRepository) Create(ctx context.Context, ack *domain.AlertAcknowledgement) error {
	const query = `
        INSERT INTO alert_acknowledgements (id, alert_id, ticket_id, user_id, status, ack_deadline, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        ON CONFLICT (alert_id, user_id) DO NOTHING`
	_, err := r.db.Exec(ctx, query,
		ack.ID,
		ack.AlertID,
		ack.TicketID,
		ack.UserID,
		ack.Status,
		ack.AckDeadline,
		ack.CreatedAt,
	)
	return err
}

func (r *acknowledgementRepository) CompareAndSetStatus(ctx context.Context, ack *domain.AlertAcknowledgement, from domain.AckStatus) (bool, error) {
	const query = `
        UPDATE alert_acknowledgements SET status=$1, acknowledged_at=$2, escalated_to=$3, escalation_reason=$4,
            escalated_at=$5, updated_at=$6
        WHERE id=$7 AND status=$8`
	cmd, err := r.db.Exec(ctx, query,
		ack.Status,
		ack.AcknowledgedAt,
		ack.EscalatedTo,
		ack.EscalationReason,
		ack.EscalatedAt,
		ack.UpdatedAt,
		ack.ID,
		from,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *acknowledgementRepository) GetByAlertAndUser(ctx context.Context, alertID, userID string) (*domain.AlertAcknowledgement, error) {
	query := `SELECT ` + ackColumns + ` FROM alert_acknowledgements WHERE alert_id=$1 AND user_id=$2`
	return scanAck(r.db.QueryRow(ctx, query, alertID, userID))
}

func (r *acknowledgementRepository) ListByAlert(ctx context.Context, alertID string) ([]domain.AlertAcknowledgement, error) {
	return r.list(ctx, `SELECT `+ackColumns+` FROM alert_acknowledgements WHERE alert_id=$1 ORDER BY user_id ASC`, alertID)
}

func (r *acknowledgementRepository) ListOverdue(ctx context.Context, now time.Time) ([]domain.AlertAcknowledgement, error) {
	return r.list(ctx, `SELECT `+ackColumns+` FROM alert_acknowledgements
        WHERE status IN ('SENT','DELIVERED','OPENED') AND ack_deadline <= $1
        ORDER BY ack_deadline ASC, id ASC`, now)
}

func (r *acknowledgementRepository) ListOpenByTicket(ctx context.Context, ticketID string) ([]domain.AlertAcknowledgement, error) {
	return r.list(ctx, `SELECT `+ackColumns+` FROM alert_acknowledgements
        WHERE ticket_id=$1 AND status IN ('SENT','DELIVERED','OPENED')
        ORDER BY created_at ASC, id ASC`, ticketID)
}

func (r *acknowledgementRepository) list(ctx context.Context, query string, args ...any) ([]domain.AlertAcknowledgement, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AlertAcknowledgement
	for rows.Next() {
		ack, err := scanAck(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ack)
	}
	return result, rows.Err()
}

func scanAck(row pgx.Row) (*domain.AlertAcknowledgement, error) {
	var ack domain.AlertAcknowledgement
	if err := row.Scan(
		&ack.ID,
		&ack.AlertID,
		&ack.TicketID,
		&ack.UserID,
		&ack.Status,
		&ack.AckDeadline,
		&ack.AcknowledgedAt,
		&ack.EscalatedTo,
		&ack.EscalationReason,
		&ack.EscalatedAt,
		&ack.CreatedAt,
		&ack.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ack, nil
}
