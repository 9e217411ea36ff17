package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/domain"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

var txRules = Rules{
	NoticeBusinessDays:   2,
	ValidityDays:         10,
	ValidityBusinessDays: true,
	ResponseBusinessDays: 2,
	UpdateAfterDays:      14,
	EmergencyNotice:      2 * time.Hour,
}

func newCalculator(t *testing.T, source calendar.Source, rules Rules) (*Calculator, *time.Location) {
	t.Helper()
	reg, err := calendar.NewRegistry([]calendar.Jurisdiction{{Code: "TX", TimeZone: "America/Chicago"}}, source, 8)
	require.NoError(t, err)
	cal, err := reg.Get("TX")
	require.NoError(t, err)
	return NewCalculator(reg, map[string]Rules{"TX": rules}), cal.Location()
}

func TestComputeMondayScenario(t *testing.T) {
	calc, loc := newCalculator(t, calendar.StaticSource{}, txRules)
	created := time.Date(2026, 10, 12, 9, 0, 0, 0, loc)

	got, err := calc.Compute(context.Background(), "TX", domain.TicketTypeStandard, created)
	require.NoError(t, err)

	assert.True(t, time.Date(2026, 10, 14, 9, 0, 0, 0, loc).Equal(got.LegalDigDate))
	assert.True(t, time.Date(2026, 10, 28, 9, 0, 0, 0, loc).Equal(got.ExpiresAt))
	assert.True(t, time.Date(2026, 10, 14, 9, 0, 0, 0, loc).Equal(got.ResponseWindowClosesAt))
	assert.True(t, created.Equal(got.ResponseWindowOpensAt))
	assert.Nil(t, got.UpdateByDate)
	assert.True(t, got.ExpiresAt.After(got.LegalDigDate))
	assert.True(t, got.LegalDigDate.After(created))
}

func TestComputeIsIdempotent(t *testing.T) {
	calc, loc := newCalculator(t, calendar.StaticSource{}, txRules)
	created := time.Date(2026, 12, 23, 15, 45, 0, 0, loc)

	first, err := calc.Compute(context.Background(), "TX", domain.TicketTypeLargeProject, created)
	require.NoError(t, err)
	second, err := calc.Compute(context.Background(), "TX", domain.TicketTypeLargeProject, created)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeCalendarValidity(t *testing.T) {
	rules := txRules
	rules.ValidityBusinessDays = false
	rules.ValidityDays = 15
	calc, loc := newCalculator(t, calendar.StaticSource{}, rules)
	created := time.Date(2026, 10, 12, 9, 0, 0, 0, loc)

	got, err := calc.Compute(context.Background(), "TX", domain.TicketTypeStandard, created)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 10, 29, 9, 0, 0, 0, loc).Equal(got.ExpiresAt))
}

func TestComputeSkipsHolidays(t *testing.T) {
	holiday, err := calendar.ParseDate("2026-10-13")
	require.NoError(t, err)
	calc, loc := newCalculator(t, calendar.StaticSource{"TX": {holiday: "Founders Day"}}, txRules)
	created := time.Date(2026, 10, 12, 9, 0, 0, 0, loc)

	got, err := calc.Compute(context.Background(), "TX", domain.TicketTypeStandard, created)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 10, 15, 9, 0, 0, 0, loc).Equal(got.LegalDigDate))
}

func TestComputeLargeProjectUpdateBy(t *testing.T) {
	calc, loc := newCalculator(t, calendar.StaticSource{}, txRules)
	created := time.Date(2026, 10, 12, 9, 0, 0, 0, loc)

	got, err := calc.Compute(context.Background(), "TX", domain.TicketTypeLargeProject, created)
	require.NoError(t, err)
	require.NotNil(t, got.UpdateByDate)
	assert.True(t, time.Date(2026, 10, 26, 9, 0, 0, 0, loc).Equal(*got.UpdateByDate))
}

func TestComputeEmergency(t *testing.T) {
	calc, loc := newCalculator(t, calendar.StaticSource{}, txRules)
	created := time.Date(2026, 10, 17, 22, 0, 0, 0, loc)

	got, err := calc.Compute(context.Background(), "TX", domain.TicketTypeEmergency, created)
	require.NoError(t, err)
	assert.True(t, created.Add(2*time.Hour).Equal(got.LegalDigDate))
	assert.True(t, got.ExpiresAt.After(got.LegalDigDate))
}

func TestComputeErrors(t *testing.T) {
	calc, loc := newCalculator(t, calendar.StaticSource{}, txRules)
	created := time.Date(2026, 10, 12, 9, 0, 0, 0, loc)

	_, err := calc.Compute(context.Background(), "CA", domain.TicketTypeStandard, created)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDeadlineComputation))

	_, err = calc.Compute(context.Background(), "TX", domain.TicketType("BOGUS"), created)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDeadlineComputation))

	bad := txRules
	bad.NoticeBusinessDays = 0
	badCalc, _ := newCalculator(t, calendar.StaticSource{}, bad)
	_, err = badCalc.Compute(context.Background(), "TX", domain.TicketTypeStandard, created)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDeadlineComputation))
}
