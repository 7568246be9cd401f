// Package app assembles the vigil components from settings and runs them.
package app

import (
	"context"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/api"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/datastore"
	"github.com/tphakala/vigil/internal/datastore/repository"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/history"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/monitor"
	"github.com/tphakala/vigil/internal/notification"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

const (
	shutdownTimeout = 10 * time.Second
	flushTimeout    = 2 * time.Second
)

// Version is reported to the error tracker as the release.
var Version = "dev"

// App holds every long-lived component.
type App struct {
	Settings   *conf.Settings
	Metrics    *metrics.Metrics
	History    *history.Store
	Browser    *notification.BrowserChannel
	Dispatcher *notification.Dispatcher
	Manager    *alerting.Manager
	Poller     *monitor.Poller

	db     *gorm.DB
	sentry *errors.SentryReporter
	log    logger.Logger
	now    func() time.Time
	once   sync.Once
}

// Option customizes New.
type Option func(*App)

// WithClock overrides time.Now for the manager and dispatcher.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New builds the components. Nothing is started until Run.
func New(s *conf.Settings, log logger.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{Settings: s, Metrics: metrics.New(), log: log, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	if dsn := s.Telemetry.SentryDSN; dsn != "" {
		reporter, err := errors.NewSentryReporter(dsn, s.Telemetry.Environment, Version)
		if err != nil {
			log.Warn("error reporting disabled", logger.Error(err))
		} else {
			a.sentry = reporter
			errors.SetReporter(reporter)
		}
	}

	backend, db, err := openBackend(s.Storage)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.History = history.NewStore(backend, s.Storage.MaxEntries, log, history.WithMetrics(a.Metrics))

	channels, err := a.buildChannels()
	if err != nil {
		a.closeDB()
		return nil, err
	}
	n := s.Notifications
	a.Dispatcher = notification.NewDispatcher(notification.DispatcherOptions{
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		SendTimeout: n.SendTimeout.Std(),
		RateLimit:   n.RateLimit,
		RateBurst:   n.RateBurst,
		Logger:      log,
		Metrics:     a.Metrics,
		Now:         a.now,
	}, channels...)

	a.Manager = alerting.NewManager(alerting.Options{
		History:  a.History,
		Notifier: a.Dispatcher,
		Logger:   log,
		Metrics:  a.Metrics,
		Now:      a.now,
	})

	a.Poller = monitor.NewPoller(a.Manager, monitor.PollerOptions{
		Interval:   s.Monitor.Interval.Std(),
		WindowSize: s.Monitor.WindowSize,
		WindowAge:  s.Monitor.WindowAge.Std(),
		Logger:     log,
		Metrics:    a.Metrics,
		Now:        a.now,
	}, monitor.NewSystemCollector(s.Monitor.DiskPath))

	return a, nil
}

// OpenHistory opens the configured history store without the rest of the
// engine. The returned func releases the backend.
func OpenHistory(s *conf.Settings, log logger.Logger) (*history.Store, func(), error) {
	backend, db, err := openBackend(s.Storage)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if db != nil {
			_ = datastore.Close(db)
		}
	}
	return history.NewStore(backend, s.Storage.MaxEntries, log), release, nil
}

func openBackend(s conf.StorageSettings) (history.Backend, *gorm.DB, error) {
	switch s.Driver {
	case conf.StorageFile, "":
		b, err := history.NewFileBackend(s.Path)
		return b, nil, err
	case conf.StorageSQLite:
		if err := os.MkdirAll(s.Path, 0o755); err != nil {
			return nil, nil, errors.New(err).
				Component("app").
				Category(errors.CategoryStorage).
				Context("path", s.Path).
				Build()
		}
		fallthrough
	case conf.StorageMySQL:
		db, err := datastore.Open(datastore.Config{Driver: s.Driver, DataDir: s.Path, DSN: s.DSN, Debug: s.Debug})
		if err != nil {
			return nil, nil, err
		}
		return repository.NewHistoryBackend(repository.NewHistoryRepository(db), s.MaxEntries), db, nil
	default:
		return nil, nil, errors.Newf("unsupported storage driver %q", s.Driver).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func (a *App) buildChannels() ([]notification.Channel, error) {
	n := a.Settings.Notifications
	email, err := notification.NewEmailChannel(n.Email)
	if err != nil {
		return nil, err
	}
	a.Browser = notification.NewBrowserChannel(n.Browser)
	return []notification.Channel{
		notification.NewConsoleChannel(a.log),
		email,
		notification.NewWebhookChannel(n.Webhook, nil),
		a.Browser,
	}, nil
}

// RuleConfigs gathers rule definitions from settings and the rules file.
// Built-in defaults are used when seeding is on and no rules are defined.
func RuleConfigs(s *conf.Settings) ([]alerting.RuleConfig, error) {
	configs := append([]alerting.RuleConfig(nil), s.Alerting.Rules...)
	if path := s.Alerting.RulesFile; path != "" {
		fromFile, err := conf.LoadRulesFile(path)
		if err != nil {
			return nil, err
		}
		configs = append(configs, fromFile...)
	}
	if len(configs) == 0 && s.Alerting.SeedDefaults {
		configs = alerting.DefaultRules()
	}
	return configs, nil
}

// LoadRules installs the configured rules. Invalid rules are skipped.
func (a *App) LoadRules() (int, error) {
	configs, err := RuleConfigs(a.Settings)
	if err != nil {
		return 0, err
	}
	loaded, errs := a.Manager.LoadRules(configs)
	a.log.Info("rules loaded", logger.Int("rules", loaded), logger.Int("rejected", len(errs)))
	return loaded, nil
}

// ReloadRules swaps the rule set for the current configuration.
func (a *App) ReloadRules() {
	configs, err := RuleConfigs(a.Settings)
	if err != nil {
		a.log.Error("rule reload failed, keeping current rules", logger.Error(err))
		return
	}
	loaded, errs := a.Manager.ReplaceRules(configs)
	a.log.Info("rules reloaded", logger.Int("rules", loaded), logger.Int("rejected", len(errs)))
}

// Run starts every enabled component and blocks until ctx is done, then
// shuts down in reverse order.
func (a *App) Run(ctx context.Context) error {
	s := a.Settings
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if path := s.Alerting.RulesFile; path != "" && s.Alerting.WatchRules {
		if err := conf.WatchFile(ctx, path, a.log, a.ReloadRules); err != nil {
			a.log.Warn("rules file watch disabled", logger.Error(err))
		}
	}

	if s.Monitor.Enabled {
		wg.Go(func() { a.Poller.Run(ctx) })
	}

	var mqttSource *monitor.MQTTSource
	if s.Monitor.MQTT.Enabled {
		mqttSource = monitor.NewMQTTSource(s.Monitor.MQTT, a.Poller, a.log)
		if err := mqttSource.Start(); err != nil {
			a.log.Error("mqtt source unavailable", logger.Error(err))
		}
	}

	wg.Go(func() { a.runCleanup(ctx) })

	var server *api.Server
	serverErr := make(chan error, 1)
	if s.Server.Enabled {
		server = api.NewServer(api.ServerOptions{
			Listen:  s.Server.Listen,
			Metrics: a.Metrics,
			Logger:  a.log,
			Controller: api.ControllerOptions{
				Manager:     a.Manager,
				History:     a.History,
				Browser:     a.Browser,
				CleanupDays: s.Alerting.CleanupDays,
			},
		})
		go func() { serverErr <- server.Start() }()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		cancel()
	}

	a.log.Info("shutting down")
	if server != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutCtx); err != nil {
			a.log.Warn("http shutdown incomplete", logger.Error(err))
		}
		shutCancel()
	}
	if mqttSource != nil {
		mqttSource.Stop()
	}
	wg.Wait()
	a.Close()
	return runErr
}

func (a *App) runCleanup(ctx context.Context) {
	days := a.Settings.Alerting.CleanupDays
	interval := a.Settings.Alerting.CleanupInterval.Std()
	if days <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Manager.CleanupOldAlerts(days)
		}
	}
}

// Close stops the dispatcher, releases the database and flushes pending
// error reports. Safe to call twice.
func (a *App) Close() {
	a.once.Do(func() {
		a.Manager.Close()
		a.closeDB()
		if a.sentry != nil {
			a.sentry.Flush(flushTimeout)
			errors.SetReporter(nil)
		}
	})
}

func (a *App) closeDB() {
	if a.db == nil {
		return
	}
	if err := datastore.Close(a.db); err != nil {
		a.log.Warn("failed to close database", logger.Error(err))
	}
}
