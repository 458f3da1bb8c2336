package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"tickd/internal/config"
	"tickd/internal/eventbus"
	"tickd/internal/notify"
	"tickd/internal/scheduler"
	"tickd/internal/storage"
	logx "tickd/pkg/logx"
)

// App owns the daemon's long-lived components and their lifecycle order:
// config -> logging -> storage -> scheduler.
type App struct {
	cfgMgr *config.Manager // nil when running without a config file
	logSvc *logx.Service
	log    logx.Logger

	bus   eventbus.Bus
	store storage.Store
	queue *notify.Queue
	sched *scheduler.Service

	cancelBG context.CancelFunc
	bg       sync.WaitGroup
}

// New builds the application from a config file path. An empty path runs with
// built-in defaults (console logging, no persistence).
func New(cfgPath string) (*App, error) {
	cfg := config.Default()
	var mgr *config.Manager
	if cfgPath != "" {
		mgr = config.NewManager(cfgPath)
		loaded, err := mgr.Load()
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg = loaded
	}

	logSvc, log := logx.New(logConfig(cfg))
	if mgr != nil {
		mgr.SetLogger(log.With(logx.String("comp", "config")))
	}

	maxDur, yield, ttl, err := cfg.TimerDurations()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	queue := notify.NewQueue(cfg.Notifications.Capacity, log.With(logx.String("comp", "notify")))
	bus := eventbus.New()
	sched := scheduler.New(scheduler.Config{
		MaxDuration:  maxDur,
		DefaultYield: yield,
		TombstoneTTL: ttl,
	}, store, queue, bus, log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		bus:    bus,
		store:  store,
		queue:  queue,
		sched:  sched,
	}, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Queue() *notify.Queue          { return a.queue }
func (a *App) Logger() logx.Logger           { return a.log }

// Start restores persisted timers and launches the background workers
// (config watcher, bus logger). It notifies systemd when running under it.
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	a.cancelBG = cancel

	// Lifecycle events at debug; operators tail these instead of polling.
	ch, unsub := a.bus.Subscribe(64)
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer unsub()
		for {
			select {
			case <-bgCtx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
			}
		}
	}()

	if a.cfgMgr != nil {
		updates := a.cfgMgr.Subscribe(1)
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			defer a.cfgMgr.Unsubscribe(updates)
			for {
				select {
				case <-bgCtx.Done():
					return
				case cfg, ok := <-updates:
					if !ok {
						return
					}
					// Only logging is hot-swappable; timer bounds and
					// storage apply on restart.
					a.logSvc.Apply(logConfig(cfg))
					a.log.Info("log config applied", logx.String("level", cfg.Log.Level))
				}
			}
		}()
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			_ = a.cfgMgr.Watch(bgCtx)
		}()
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("tickd ready")
	return nil
}

// Stop shuts everything down in reverse order of Start.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cancelBG != nil {
		a.cancelBG()
	}
	a.sched.Shutdown(ctx)
	a.bg.Wait()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("tickd stopped")
	return a.logSvc.Close()
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}
