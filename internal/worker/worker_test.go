package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/persistence"
)

func TestForEachBoundsConcurrency(t *testing.T) {
	items := make([]int, 40)
	for i := range items {
		items[i] = i
	}
	var inFlight, peak, seen atomic.Int32
	err := ForEach(context.Background(), 4, items, func(_ context.Context, _ int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		seen.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(40), seen.Load())
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("store unreachable")
	err := ForEach(context.Background(), 1, []int{1, 2, 3}, func(_ context.Context, i int) error {
		if i == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestSchedulerRunNowTakesLease(t *testing.T) {
	locker := persistence.NewLocalLocker()
	s := NewScheduler(time.UTC, locker, time.Minute, zap.NewNop(), nil)

	var runs atomic.Int32
	require.NoError(t, s.Register("alerts", "@every 1h", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	assert.Error(t, s.Register("alerts", "@every 1h", func(context.Context) error { return nil }))

	release, err := locker.Acquire(context.Background(), "sweep:alerts", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)

	require.NoError(t, s.RunNow(context.Background(), "alerts"))
	assert.Zero(t, runs.Load(), "lease held elsewhere")

	release()
	require.NoError(t, s.RunNow(context.Background(), "alerts"))
	assert.Equal(t, int32(1), runs.Load())

	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(time.UTC, persistence.NewLocalLocker(), time.Minute, zap.NewNop(), nil)
	assert.Error(t, s.Register("expiry", "not a spec", func(context.Context) error { return nil }))
}

func TestSchedulerReturnsJobError(t *testing.T) {
	s := NewScheduler(time.UTC, persistence.NewLocalLocker(), time.Minute, zap.NewNop(), nil)
	var once sync.Once
	boom := errors.New("list failed")
	require.NoError(t, s.Register("escalation", "@every 1h", func(context.Context) error {
		var err error
		once.Do(func() { err = boom })
		return err
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "escalation"), boom)
	assert.NoError(t, s.RunNow(context.Background(), "escalation"))
}

func TestSchedulerRunAdHocJob(t *testing.T) {
	locker := persistence.NewLocalLocker()
	s := NewScheduler(time.UTC, locker, time.Minute, zap.NewNop(), nil)

	ran, err := s.Run(context.Background(), "expiry", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)

	release, err := locker.Acquire(context.Background(), "sweep:expiry", time.Minute)
	require.NoError(t, err)
	defer release()
	ran, err = s.Run(context.Background(), "expiry", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.False(t, ran)
}
