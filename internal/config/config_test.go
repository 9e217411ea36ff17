package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SWEEP_CONCURRENCY", "")
	t.Setenv("DISPATCH_RATE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Sweeps.Concurrency)
	assert.Equal(t, "600-M", cfg.Dispatch.Rate)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.Backoff())
	assert.Equal(t, 55*time.Second, cfg.Sweeps.LockTTL())
}

func TestLoadRejectsZeroConcurrency(t *testing.T) {
	t.Setenv("SWEEP_CONCURRENCY", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEngineFile(t *testing.T) {
	e, err := LoadEngine(filepath.Join("..", "..", "configs", "engine.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, e.Version)

	rs, err := e.RuleSet()
	require.NoError(t, err)
	renewal, ok := rs.Find(domain.AlertRenewalReminder)
	require.True(t, ok)
	assert.Equal(t, 5*24*time.Hour, renewal.Within)

	rules, err := e.DeadlineRules()
	require.NoError(t, err)
	assert.Equal(t, 2, rules["TX"].NoticeBusinessDays)
	assert.True(t, rules["NY"].ValidityBusinessDays)
	assert.Equal(t, 2*time.Hour, rules["TX"].EmergencyNotice)

	src, err := e.HolidaySource()
	require.NoError(t, err)
	assert.Equal(t, "Thanksgiving Day", src["TX"][calendar.Date{Year: 2026, Month: time.November, Day: 26}])

	jurisdictions, err := e.CalendarJurisdictions()
	require.NoError(t, err)
	require.Len(t, jurisdictions, 3)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, jurisdictions[0].Weekend)
}

func TestParseEngineErrors(t *testing.T) {
	cases := map[string]string{
		"no version":       "jurisdictions: [{code: TX, timezone: UTC}]",
		"no jurisdictions": "version: 1",
		"malformed":        "version: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEngine([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestEngineRejectsBadRule(t *testing.T) {
	e, err := ParseEngine([]byte(`
version: 2
jurisdictions:
  - code: TX
    timezone: UTC
rules:
  - name: broken
    trigger: BEFORE_EXPIRY
    alert_type: EXPIRING_SOON
    priority: HIGH
`))
	require.NoError(t, err)
	_, err = e.RuleSet()
	assert.Error(t, err)
}

func TestEngineBadWeekdayAndHoliday(t *testing.T) {
	e, err := ParseEngine([]byte(`
version: 1
jurisdictions:
  - code: TX
    timezone: UTC
    weekend: [caturday]
    holidays:
      - { date: "26-11-2026", name: "bad" }
`))
	require.NoError(t, err)
	_, err = e.CalendarJurisdictions()
	assert.Error(t, err)
	_, err = e.HolidaySource()
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("3d")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)

	d, err = parseDuration("")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = parseDuration("xd")
	assert.Error(t, err)
}

func TestLoadEngineMissingFile(t *testing.T) {
	_, err := LoadEngine(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
