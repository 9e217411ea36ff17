package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/locate-service/internal/calendar"
)

// HolidayRepository stores jurisdiction holidays and serves them as a
// calendar.Source.
type HolidayRepository struct {
	pool *pgxpool.Pool
}

// NewHolidayRepository builds repository.
func NewHolidayRepository(pool *pgxpool.Pool) *HolidayRepository {
	return &HolidayRepository{pool: pool}
}

// Upsert records a holiday, replacing its name if the date exists.
func (r *HolidayRepository) Upsert(ctx context.Context, jurisdiction string, date calendar.Date, name string) error {
	const query = `
        INSERT INTO holidays (jurisdiction, day, name) VALUES ($1,$2::date,$3)
        ON CONFLICT (jurisdiction, day) DO UPDATE SET name=EXCLUDED.name`
	_, err := r.pool.Exec(ctx, query, jurisdiction, date.String(), name)
	return err
}

// Holidays implements calendar.Source.
func (r *HolidayRepository) Holidays(ctx context.Context, jurisdiction string, year int) (map[calendar.Date]string, error) {
	const query = `
        SELECT day, name FROM holidays
        WHERE jurisdiction=$1 AND day >= make_date($2, 1, 1) AND day < make_date($2 + 1, 1, 1)`
	rows, err := r.pool.Query(ctx, query, jurisdiction, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[calendar.Date]string{}
	for rows.Next() {
		var (
			day  time.Time
			name string
		)
		if err := rows.Scan(&day, &name); err != nil {
			return nil, err
		}
		result[calendar.DateOf(day.UTC())] = name
	}
	return result, rows.Err()
}
