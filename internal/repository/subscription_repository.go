package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/locate-service/internal/domain"
)

// SubscriptionRepository persists alert subscriptions.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *domain.AlertSubscription) error
	GetByID(ctx context.Context, id string) (*domain.AlertSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]domain.AlertSubscription, error)
	ListActiveByOrganization(ctx context.Context, organizationID string) ([]domain.AlertSubscription, error)
}

type subscriptionRepository struct {
	db Querier
}

// NewSubscriptionRepository builds repository.
func NewSubscriptionRepository(db Querier) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, organization_id, scope, project_id, center_lat, center_lng, radius_km,
               alert_types, channels, contacts, quiet_mode, active, created_at, updated_at`

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *domain.AlertSubscription) error {
	const query = `
        INSERT INTO alert_subscriptions (id, user_id, organization_id, scope, project_id, center_lat, center_lng,
            radius_km, alert_types, channels, contacts, quiet_mode, active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (id) DO UPDATE SET scope=EXCLUDED.scope, project_id=EXCLUDED.project_id,
            center_lat=EXCLUDED.center_lat, center_lng=EXCLUDED.center_lng, radius_km=EXCLUDED.radius_km,
            alert_types=EXCLUDED.alert_types, channels=EXCLUDED.channels, contacts=EXCLUDED.contacts,
            quiet_mode=EXCLUDED.quiet_mode, active=EXCLUDED.active, updated_at=EXCLUDED.updated_at`
	lat, lng := splitPoint(sub.Center)
	types := make([]string, len(sub.AlertTypes))
	for i, t := range sub.AlertTypes {
		types[i] = string(t)
	}
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.UserID,
		sub.OrganizationID,
		sub.Scope,
		sub.ProjectID,
		lat,
		lng,
		sub.RadiusKm,
		types,
		channelStrings(sub.Channels),
		sub.Contacts,
		sub.QuietMode,
		sub.Active,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	return err
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*domain.AlertSubscription, error) {
	return scanSubscription(r.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM alert_subscriptions WHERE id=$1`, id))
}

func (r *subscriptionRepository) ListByUser(ctx context.Context, userID string) ([]domain.AlertSubscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM alert_subscriptions WHERE user_id=$1 ORDER BY created_at ASC`, userID)
}

func (r *subscriptionRepository) ListActiveByOrganization(ctx context.Context, organizationID string) ([]domain.AlertSubscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM alert_subscriptions
        WHERE organization_id=$1 AND active ORDER BY user_id ASC, id ASC`, organizationID)
}

func (r *subscriptionRepository) list(ctx context.Context, query string, args ...any) ([]domain.AlertSubscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AlertSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sub)
	}
	return result, rows.Err()
}

func scanSubscription(row pgx.Row) (*domain.AlertSubscription, error) {
	var (
		sub             domain.AlertSubscription
		lat, lng        *float64
		types, channels []string
	)
	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.OrganizationID,
		&sub.Scope,
		&sub.ProjectID,
		&lat,
		&lng,
		&sub.RadiusKm,
		&types,
		&channels,
		&sub.Contacts,
		&sub.QuietMode,
		&sub.Active,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Center = joinPoint(lat, lng)
	sub.Channels = channelsFromStrings(channels)
	sub.AlertTypes = make([]domain.AlertType, len(types))
	for i, t := range types {
		sub.AlertTypes[i] = domain.AlertType(t)
	}
	return &sub, nil
}
