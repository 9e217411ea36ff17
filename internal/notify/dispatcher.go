package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/observability"
)

const limiterKey = "alert-dispatch"

// ErrNoSink is returned for a channel without a registered sink.
var ErrNoSink = errors.New("no sink registered for channel")

// Result summarizes the delivery of one alert.
type Result struct {
	Attempts    int
	Delivered   []Target
	Failed      []Target
	LastError   error
	CompletedAt time.Time
}

// OK reports whether at least one target received the alert, or there was
// nobody to send to.
func (r Result) OK() bool {
	return len(r.Delivered) > 0 || len(r.Failed) == 0
}

// Dispatcher sends contracts through channel sinks.
type Dispatcher struct {
	sinks       map[domain.Channel]Sink
	store       limiter.Store
	limiter     *limiter.Limiter
	maxAttempts int
	backoff     time.Duration
	sendTimeout time.Duration
	metrics     *observability.Metrics
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLimiterStore shares the dispatch budget through store, typically the
// Redis driver, instead of a process-local counter.
func WithLimiterStore(store limiter.Store) Option {
	return func(d *Dispatcher) { d.store = store }
}

// NewDispatcher builds a dispatcher from config. The rate is a ulule
// formatted rate such as "600-M".
func NewDispatcher(cfg config.DispatchConfig, sinks map[domain.Channel]Sink, metrics *observability.Metrics, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("dispatch rate %q: %w", cfg.Rate, err)
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := cfg.SendTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		sinks:       sinks,
		maxAttempts: attempts,
		backoff:     cfg.Backoff(),
		sendTimeout: timeout,
		metrics:     metrics,
		logger:      logger,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.store == nil {
		d.store = memory.NewStore()
	}
	d.limiter = limiter.New(d.store, rate)
	return d, nil
}

// Allow takes one slot from the dispatch budget. A false result means the
// caller should defer the alert to a later sweep.
func (d *Dispatcher) Allow(ctx context.Context) (bool, error) {
	lctx, err := d.limiter.Get(ctx, limiterKey)
	if err != nil {
		return false, err
	}
	if lctx.Reached {
		d.metrics.DispatchThrottled()
		return false, nil
	}
	return true, nil
}

// Deliver sends base to every target. Each target is retried with
// exponential backoff up to the configured attempt count.
func (d *Dispatcher) Deliver(ctx context.Context, base Contract, targets []Target) Result {
	var res Result
	for _, t := range targets {
		c := base
		c.RecipientID = t.UserID
		c.Channel = t.Channel
		c.Endpoint = t.Endpoint

		attempts, err := d.sendWithRetry(ctx, c)
		if attempts > res.Attempts {
			res.Attempts = attempts
		}
		if err != nil {
			res.Failed = append(res.Failed, t)
			res.LastError = err
			d.logger.Warn("alert delivery failed",
				zap.String("alert_id", c.AlertID),
				zap.String("channel", string(c.Channel)),
				zap.String("recipient_id", c.RecipientID),
				zap.Int("attempts", attempts),
				zap.Error(err))
			continue
		}
		res.Delivered = append(res.Delivered, t)
	}
	if !res.OK() {
		d.metrics.DispatchFailed(string(base.AlertType))
	}
	res.CompletedAt = time.Now()
	return res
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, c Contract) (int, error) {
	sink, ok := d.sinks[c.Channel]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSink, c.Channel)
	}

	var lastErr error
	wait := d.backoff
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		d.metrics.DispatchAttempt(string(c.Channel))

		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		_, err := sink.Send(sendCtx, c)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if attempt == d.maxAttempts || ctx.Err() != nil {
			return attempt, lastErr
		}
		if err := d.sleep(ctx, wait); err != nil {
			return attempt, lastErr
		}
		wait *= 2
	}
	return d.maxAttempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
