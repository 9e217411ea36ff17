package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/domain"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    []Contract
}

func (s *flakySink) Send(_ context.Context, c Contract) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	if s.failures > 0 {
		s.failures--
		return Receipt{}, errors.New("provider unavailable")
	}
	return Receipt{ProviderID: "ok"}, nil
}

func newTestDispatcher(t *testing.T, rate string, sinks map[domain.Channel]Sink) (*Dispatcher, *[]time.Duration) {
	t.Helper()
	d, err := NewDispatcher(config.DispatchConfig{
		Rate:           rate,
		MaxAttempts:    3,
		BackoffMillis:  100,
		SendTimeoutSec: 1,
	}, sinks, nil, zap.NewNop())
	require.NoError(t, err)

	var waits []time.Duration
	d.sleep = func(_ context.Context, wait time.Duration) error {
		waits = append(waits, wait)
		return nil
	}
	return d, &waits
}

func baseContract() Contract {
	return Contract{
		AlertID:   "alert-1",
		TicketID:  "ticket-1",
		AlertType: domain.AlertConflictDetected,
		Priority:  domain.PriorityCritical,
		Subject:   "conflict",
	}
}

func TestDeliverRetriesWithBackoff(t *testing.T) {
	sink := &flakySink{failures: 2}
	d, waits := newTestDispatcher(t, "100-M", map[domain.Channel]Sink{domain.ChannelSMS: sink})

	res := d.Deliver(context.Background(), baseContract(), []Target{
		{UserID: "u1", Channel: domain.ChannelSMS, Endpoint: "+15125550100"},
	})

	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Delivered, 1)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *waits)
	require.Len(t, sink.calls, 3)
	assert.Equal(t, "u1", sink.calls[0].RecipientID)
	assert.Equal(t, "+15125550100", sink.calls[0].Endpoint)
}

func TestDeliverExhaustsAttempts(t *testing.T) {
	sink := &flakySink{failures: 10}
	d, _ := newTestDispatcher(t, "100-M", map[domain.Channel]Sink{domain.ChannelEmail: sink})

	res := d.Deliver(context.Background(), baseContract(), []Target{
		{UserID: "u1", Channel: domain.ChannelEmail, Endpoint: "crew@example.com"},
	})

	assert.False(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Failed, 1)
	assert.EqualError(t, res.LastError, "provider unavailable")
	assert.Len(t, sink.calls, 3)
}

func TestDeliverPartialSuccessCountsAsDelivered(t *testing.T) {
	good := &flakySink{}
	d, _ := newTestDispatcher(t, "100-M", map[domain.Channel]Sink{domain.ChannelPush: good})

	res := d.Deliver(context.Background(), baseContract(), []Target{
		{UserID: "u1", Channel: domain.ChannelPush, Endpoint: "device-1"},
		{UserID: "u2", Channel: domain.ChannelSMS, Endpoint: "+15125550101"},
	})

	assert.True(t, res.OK())
	assert.Len(t, res.Delivered, 1)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.LastError, ErrNoSink)
}

func TestDeliverWithoutTargets(t *testing.T) {
	d, _ := newTestDispatcher(t, "100-M", nil)
	res := d.Deliver(context.Background(), baseContract(), nil)
	assert.True(t, res.OK())
	assert.Zero(t, res.Attempts)
}

func TestAllowEnforcesRate(t *testing.T) {
	d, _ := newTestDispatcher(t, "2-M", nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := d.Allow(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := d.Allow(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewDispatcherRejectsBadRate(t *testing.T) {
	_, err := NewDispatcher(config.DispatchConfig{Rate: "lots"}, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestLogSinkHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLogSink(zap.NewNop()).Send(ctx, baseContract())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWebhookSinkRequiresEndpoint(t *testing.T) {
	_, err := NewWebhookSink("", time.Second).Send(context.Background(), baseContract())
	assert.Error(t, err)
}

func TestSharedLimiterStoreSharesBudget(t *testing.T) {
	store := memory.NewStore()
	cfg := config.DispatchConfig{Rate: "1-M", MaxAttempts: 1}
	first, err := NewDispatcher(cfg, nil, nil, zap.NewNop(), WithLimiterStore(store))
	require.NoError(t, err)
	second, err := NewDispatcher(cfg, nil, nil, zap.NewNop(), WithLimiterStore(store))
	require.NoError(t, err)

	ok, err := first.Allow(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Allow(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
