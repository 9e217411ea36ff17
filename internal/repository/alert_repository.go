package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

// AlertRepository persists emitted alerts. dedup_key is unique: inserting
// an existing key is how a sweep loses a claim.
type AlertRepository interface {
	CreateIfAbsent(ctx context.Context, alert *domain.TicketAlert) (bool, error)
	ExistsByDedupKey(ctx context.Context, key string) (bool, error)
	UpdateDelivery(ctx context.Context, alert *domain.TicketAlert) error
	GetByID(ctx context.Context, id string) (*domain.TicketAlert, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAlert, error)
	// ListUndelivered returns claimed alerts that were neither sent nor
	// marked failed, oldest first.
	ListUndelivered(ctx context.Context, limit int) ([]domain.TicketAlert, error)
}

type alertRepository struct {
	db Querier
}

// NewAlertRepository builds repository.
func NewAlertRepository(db Querier) AlertRepository {
	return &alertRepository{db: db}
}

const alertColumns = `id, COALESCE(ticket_id, ''), organization_id, alert_type, dedup_key, rule_name, channels,
               priority, subject, body, recipients, requires_ack, attempts, sent_at, delivered_at, failed_at,
               failure_reason, created_at`

func (r *alertRepository) CreateIfAbsent(ctx context.Context, alert *domain.TicketAlert) (bool, error) {
	const query = `
        INSERT INTO ticket_alerts (id, ticket_id, organization_id, alert_type, dedup_key, rule_name, channels,
            priority, subject, body, recipients, requires_ack, attempts, created_at)
        VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (dedup_key) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query,
		alert.ID,
		alert.TicketID,
		alert.OrganizationID,
		alert.AlertType,
		alert.DedupKey,
		alert.RuleName,
		channelStrings(alert.Channels),
		alert.Priority,
		alert.Subject,
		alert.Body,
		nonNil(alert.Recipients),
		alert.RequiresAck,
		alert.Attempts,
		alert.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *alertRepository) ExistsByDedupKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_alerts WHERE dedup_key=$1)`, key).Scan(&exists)
	return exists, err
}

func (r *alertRepository) UpdateDelivery(ctx context.Context, alert *domain.TicketAlert) error {
	const query = `
        UPDATE ticket_alerts SET channels=$1, recipients=$2, attempts=$3, sent_at=$4, delivered_at=$5,
            failed_at=$6, failure_reason=$7
        WHERE id=$8`
	cmd, err := r.db.Exec(ctx, query,
		channelStrings(alert.Channels),
		nonNil(alert.Recipients),
		alert.Attempts,
		alert.SentAt,
		alert.DeliveredAt,
		alert.FailedAt,
		alert.FailureReason,
		alert.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *alertRepository) GetByID(ctx context.Context, id string) (*domain.TicketAlert, error) {
	return scanAlert(r.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM ticket_alerts WHERE id=$1`, id))
}

func (r *alertRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAlert, error) {
	return r.list(ctx, `SELECT `+alertColumns+` FROM ticket_alerts WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`, ticketID)
}

func (r *alertRepository) ListUndelivered(ctx context.Context, limit int) ([]domain.TicketAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+alertColumns+` FROM ticket_alerts
        WHERE sent_at IS NULL AND failed_at IS NULL ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
}

func (r *alertRepository) list(ctx context.Context, query string, args ...any) ([]domain.TicketAlert, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	return result, rows.Err()
}

func scanAlert(row pgx.Row) (*domain.TicketAlert, error) {
	var (
		alert    domain.TicketAlert
		channels []string
	)
	if err := row.Scan(
		&alert.ID,
		&alert.TicketID,
		&alert.OrganizationID,
		&alert.AlertType,
		&alert.DedupKey,
		&alert.RuleName,
		&channels,
		&alert.Priority,
		&alert.Subject,
		&alert.Body,
		&alert.Recipients,
		&alert.RequiresAck,
		&alert.Attempts,
		&alert.SentAt,
		&alert.DeliveredAt,
		&alert.FailedAt,
		&alert.FailureReason,
		&alert.CreatedAt,
	); err != nil {
		return nil, err
	}
	alert.Channels = channelsFromStrings(channels)
	return &alert, nil
}

func channelStrings(channels []domain.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = string(ch)
	}
	return out
}

func channelsFromStrings(values []string) []domain.Channel {
	out := make([]domain.Channel, len(values))
	for i, v := range values {
		out[i] = domain.Channel(v)
	}
	return out
}
