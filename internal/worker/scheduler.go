package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/observability"
	"github.com/spec-kit/locate-service/internal/persistence"
)

// Job is one sweep run.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron specs. Each run holds a named lease so
// only one instance runs a given sweep at a time.
type Scheduler struct {
	cron    *cron.Cron
	locker  persistence.Locker
	lockTTL time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	jobs map[string]Job

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler evaluating specs in loc.
func NewScheduler(loc *time.Location, locker persistence.Locker, lockTTL time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	clog := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
		metrics: metrics,
		jobs:    map[string]Job{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register schedules job under name.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.run(s.ctx, name, job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.jobs[name] = job
	return nil
}

// RunNow runs a registered job immediately under the same lease.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, name, job)
}

// Run runs job under the lease of name, whether or not name is registered.
// It reports false when another instance holds the lease.
func (s *Scheduler) Run(ctx context.Context, name string, job Job) (bool, error) {
	ran := false
	err := s.run(ctx, name, func(ctx context.Context) error {
		ran = true
		return job(ctx)
	})
	return ran, err
}

// Start begins firing jobs.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	start := time.Now()
	release, err := s.locker.Acquire(ctx, "sweep:"+name, s.lockTTL)
	if err != nil {
		s.logger.Error("sweep lock failed", zap.String("sweep", name), zap.Error(err))
		s.metrics.RecordSweep(name, "lock_error", time.Since(start))
		return err
	}
	if release == nil {
		s.logger.Debug("sweep held by another instance", zap.String("sweep", name))
		s.metrics.RecordSweep(name, "skipped", time.Since(start))
		return nil
	}
	defer release()

	runCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	if err := job(runCtx); err != nil {
		s.logger.Error("sweep failed", zap.String("sweep", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		s.metrics.RecordSweep(name, "error", time.Since(start))
		return err
	}
	s.metrics.RecordSweep(name, "ok", time.Since(start))
	return nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
