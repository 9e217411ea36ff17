// Package app assembles the locate engine from configuration. The API
// server and the operator CLI share it.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/clock"
	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/deadline"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/events"
	"github.com/spec-kit/locate-service/internal/notify"
	"github.com/spec-kit/locate-service/internal/observability"
	"github.com/spec-kit/locate-service/internal/persistence"
	"github.com/spec-kit/locate-service/internal/repository"
	"github.com/spec-kit/locate-service/internal/repository/memory"
	"github.com/spec-kit/locate-service/internal/service"
	"github.com/spec-kit/locate-service/internal/worker"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// Sweep names double as cron job and lease names.
const (
	SweepExpiry     = "expiry"
	SweepAlerts     = "alerts"
	SweepEscalation = "escalation"
)

// SweepFunc runs one sweep to completion.
type SweepFunc func(ctx context.Context) (service.SweepReport, error)

// Options overrides parts of the assembly, mostly for tests.
type Options struct {
	Engine  *config.Engine
	Store   repository.Store
	Clock   clock.Clock
	Sinks   map[domain.Channel]notify.Sink
	Metrics *observability.Metrics
}

// App is the assembled engine.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Store    repository.Store
	Holidays *repository.HolidayRepository
	Engine   *config.Engine
	Rules    map[string]deadline.Rules

	Calendars     *calendar.Registry
	Events        events.Dispatcher
	Scheduler     *worker.Scheduler
	Auth          *service.AuthService
	Tickets       *service.TicketService
	Alerts        *service.AlertService
	Acks          *service.AckService
	Conflicts     *service.ConflictService
	Subscriptions *service.SubscriptionService
	Notifications *service.NotificationService

	sweeps map[string]SweepFunc
}

// New connects the stores and builds every service. Postgres is used when
// a DSN is configured, otherwise the in-memory store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: opts.Metrics}
	if a.Metrics == nil {
		a.Metrics = observability.NewMetrics()
	}

	engine := opts.Engine
	if engine == nil {
		loaded, err := config.LoadEngine(cfg.Engine.File)
		if err != nil {
			return nil, err
		}
		engine = loaded
	}
	a.Engine = engine

	if err := a.openStore(ctx, opts.Store); err != nil {
		a.Close()
		return nil, err
	}
	a.Redis = persistence.NewRedis(cfg.Redis, logger)

	if err := a.build(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, store repository.Store) error {
	if store != nil {
		a.Store = store
		return nil
	}
	if a.Config.Postgres.DSN == "" {
		a.Logger.Warn("running on the in-memory store; state is lost on restart")
		a.Store = memory.NewStore()
		return nil
	}

	pg, err := persistence.NewPostgres(ctx, a.Config.Postgres, a.Logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.Postgres = pg
	if a.Config.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), a.Config.Postgres.MigrationsDir, a.Logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	a.Store = repository.NewPostgresStore(pg.PoolHandle())
	a.Holidays = repository.NewHolidayRepository(pg.PoolHandle())
	return nil
}

func (a *App) build(opts Options) error {
	cfg := a.Config
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}

	jurisdictions, err := a.Engine.CalendarJurisdictions()
	if err != nil {
		return err
	}
	fileHolidays, err := a.Engine.HolidaySource()
	if err != nil {
		return err
	}
	var source calendar.Source = fileHolidays
	if a.Holidays != nil {
		source = calendar.Sources{a.Holidays, fileHolidays}
	}
	a.Calendars, err = calendar.NewRegistry(jurisdictions, source, cfg.Sweeps.HolidayCacheLen)
	if err != nil {
		return fmt.Errorf("build calendars: %w", err)
	}
	a.Rules, err = a.Engine.DeadlineRules()
	if err != nil {
		return err
	}
	ruleSet, err := a.Engine.RuleSet()
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Sweeps.TimeZone)
	if err != nil {
		return fmt.Errorf("sweep time zone %q: %w", cfg.Sweeps.TimeZone, err)
	}

	webhook := notify.NewWebhookSink(cfg.Dispatch.WebhookURL, time.Duration(cfg.Dispatch.WebhookTimeoutMs)*time.Millisecond)
	sinks := opts.Sinks
	if sinks == nil {
		logSink := notify.NewLogSink(a.Logger)
		sinks = map[domain.Channel]notify.Sink{
			domain.ChannelEmail:   logSink,
			domain.ChannelSMS:     logSink,
			domain.ChannelPush:    logSink,
			domain.ChannelWebhook: webhook,
		}
	}
	var dispatchOpts []notify.Option
	if a.Redis != nil && a.Redis.Client != nil {
		store, err := sredis.NewStoreWithOptions(a.Redis.Client, limiter.StoreOptions{Prefix: "locate:dispatch", MaxRetry: 3})
		if err != nil {
			return fmt.Errorf("dispatch limiter store: %w", err)
		}
		dispatchOpts = append(dispatchOpts, notify.WithLimiterStore(store))
	}
	dispatcher, err := notify.NewDispatcher(cfg.Dispatch, sinks, a.Metrics, a.Logger, dispatchOpts...)
	if err != nil {
		return err
	}

	a.Events = events.NewInMemoryDispatcher(a.Logger)
	var ops notify.Sink
	if cfg.Dispatch.WebhookURL != "" {
		ops = webhook
	}
	a.Notifications = service.NewNotificationService(a.Events, a.Logger, a.Metrics, ops)
	a.Notifications.RegisterHandlers()

	deps := service.Dependencies{
		Store:         a.Store,
		Dispatcher:    a.Events,
		Clock:         c,
		Logger:        a.Logger,
		Metrics:       a.Metrics,
		UpdateRetries: cfg.Sweeps.UpdateRetries,
		Concurrency:   cfg.Sweeps.Concurrency,
	}
	a.Alerts = service.NewAlertService(service.AlertDependencies{
		Dependencies:   deps,
		Rules:          ruleSet,
		Notifier:       dispatcher,
		Calendars:      a.Calendars,
		DigestLocation: loc,
	})
	a.Tickets = service.NewTicketService(service.TicketDependencies{
		Dependencies: deps,
		Deadlines:    deadline.NewCalculator(a.Calendars, a.Rules),
		Alerts:       a.Alerts,
	})
	a.Acks = service.NewAckService(service.AckDependencies{Dependencies: deps, Alerts: a.Alerts})
	a.Conflicts = service.NewConflictService(service.ConflictDependencies{Dependencies: deps, Alerts: a.Alerts})
	a.Subscriptions = service.NewSubscriptionService(deps)
	a.Auth = service.NewAuthService(cfg.Auth, service.AuthDependencies{UserRepo: a.Store.Users(), Clock: c})

	a.sweeps = map[string]SweepFunc{
		SweepExpiry:     a.Tickets.ExpireSweep,
		SweepAlerts:     a.Alerts.RunSweep,
		SweepEscalation: a.Acks.EscalationSweep,
	}
	a.Scheduler = worker.NewScheduler(loc, persistence.NewLocker(a.Redis), cfg.Sweeps.LockTTL(), a.Logger, a.Metrics)
	specs := map[string]string{
		SweepExpiry:     cfg.Sweeps.ExpirySpec,
		SweepAlerts:     cfg.Sweeps.AlertSpec,
		SweepEscalation: cfg.Sweeps.EscalationSpec,
	}
	for _, name := range a.SweepNames() {
		if err := a.Scheduler.Register(name, specs[name], a.job(name)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) job(name string) worker.Job {
	sweep := a.sweeps[name]
	return func(ctx context.Context) error {
		report, err := sweep(ctx)
		if err != nil {
			return err
		}
		logReport(a.Logger, report)
		return nil
	}
}

func logReport(logger *zap.Logger, r service.SweepReport) {
	logger.Info("sweep finished",
		zap.String("sweep", r.Sweep),
		zap.Int("scanned", r.Scanned),
		zap.Int("changed", r.Changed),
		zap.Int("emitted", r.Emitted),
		zap.Int("suppressed", r.Suppressed),
		zap.Int("deferred", r.Deferred),
		zap.Int("redelivered", r.Redelivered),
		zap.Int("escalated", r.Escalated),
		zap.Int("flagged", r.Flagged),
		zap.Int("failed", r.Failed))
}

// SweepNames lists the sweeps in a stable order.
func (a *App) SweepNames() []string {
	names := make([]string, 0, len(a.sweeps))
	for name := range a.sweeps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunSweep runs one sweep now under its lease. ran is false when another
// instance holds the lease.
func (a *App) RunSweep(ctx context.Context, name string) (report service.SweepReport, ran bool, err error) {
	sweep, ok := a.sweeps[name]
	if !ok {
		return report, false, apperrors.NewNotFound("sweep", map[string]any{"sweep": name, "known": a.SweepNames()})
	}
	ran, err = a.Scheduler.Run(ctx, name, func(ctx context.Context) error {
		var runErr error
		report, runErr = sweep(ctx)
		return runErr
	})
	if err == nil && ran {
		logReport(a.Logger, report)
	}
	return report, ran, err
}

// StartSweeps starts the cron scheduler when sweeps are enabled.
func (a *App) StartSweeps() {
	if !a.Config.Sweeps.Enabled {
		a.Logger.Info("periodic sweeps disabled")
		return
	}
	a.Scheduler.Start()
	a.Logger.Info("periodic sweeps started",
		zap.String("expiry", a.Config.Sweeps.ExpirySpec),
		zap.String("alerts", a.Config.Sweeps.AlertSpec),
		zap.String("escalation", a.Config.Sweeps.EscalationSpec))
}

// Close stops the scheduler and releases connections.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	a.Redis.Close()
	a.Postgres.Close()
}
