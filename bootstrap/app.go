// Package bootstrap wires configuration, logging, upstream clients, the
// dashboard registry, and the API server into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"argus/api"
	"argus/config"
	"argus/dashboard"
	"argus/iris"
	"argus/misp"
	"argus/notify"
	"argus/service"
	"argus/storage"
	"argus/wazuh"

	"go.uber.org/zap"
)

// App owns every long-lived component and their shutdown ordering.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
	Config *config.Config

	Notifier *notify.Center
	Wazuh    *wazuh.Client
	IRIS     *iris.Client
	MISP     *misp.Client

	Registry *dashboard.Registry
	Search   *dashboard.Search

	SQLite        *storage.SQLite
	SavedSearches *storage.SavedSearchStore
	Snapshots     *storage.SnapshotCache

	Hub    *api.Hub
	Poller *service.Poller
	API    *api.API
}

// NewApp builds the full component graph. Optional integrations (IRIS,
// MISP, Redis, SQLite) that are disabled or fail to open leave their slot
// nil; downstream consumers treat nil as "feature off".
func NewApp(ctx context.Context) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)
	app := &App{ctx: ctx, cancel: cancel}

	logger, sugar, err := InitLogger()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	cfg, err := InitConfig(sugar)
	if err != nil {
		cancel()
		return nil, err
	}
	app.Config = cfg

	app.Notifier = notify.NewCenter(cfg.Notifications.WebhookURL, cfg.Notifications.MaxRetained, sugar)
	app.Wazuh = wazuh.NewClient(cfg, sugar)

	if cfg.IRIS.Enabled {
		app.IRIS = iris.NewClient(cfg, sugar)
	}
	if cfg.MISP.Enabled {
		app.MISP = misp.NewClient(cfg, sugar)
	}

	app.Registry = dashboard.NewRegistry()
	app.Registry.Register(dashboard.NewOverview(app.Wazuh, cfg, app.Notifier, sugar))
	app.Registry.Register(dashboard.NewFIM(app.Wazuh, cfg, app.Notifier, sugar))
	app.Registry.Register(dashboard.NewUBA(app.Wazuh, cfg, app.Notifier, sugar))
	app.Registry.Register(dashboard.NewThreatIntel(app.Wazuh, app.MISP, cfg, app.Notifier, sugar))
	if app.IRIS != nil {
		app.Registry.Register(dashboard.NewCases(app.IRIS, cfg, app.Notifier, sugar))
	}
	app.Search = dashboard.NewSearch(app.Wazuh, cfg, app.Notifier, sugar)
	app.Registry.Register(app.Search.Dashboard)

	if cfg.SQLitePath != "" {
		db, err := storage.NewSQLite(cfg.SQLitePath, sugar)
		if err != nil {
			sugar.Warnw("SQLite unavailable, saved searches disabled", "path", cfg.SQLitePath, "error", err)
		} else {
			app.SQLite = db
			store, err := storage.NewSavedSearchStore(db, sugar)
			if err != nil {
				sugar.Warnw("Saved search store init failed", "error", err)
			} else {
				app.SavedSearches = store
			}
		}
	}

	if cfg.Redis.Enabled {
		cache := storage.NewSnapshotCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.PoolSize, cfg.Redis.SnapshotTTL, sugar)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := cache.Ping(pingCtx); err != nil {
			sugar.Warnw("Redis unavailable, snapshot cache disabled", "addr", cfg.Redis.Addr, "error", err)
			cache.Close()
		} else {
			app.Snapshots = cache
		}
		pingCancel()
	}

	if cfg.Dashboards.EnableRealtime {
		app.Hub = api.NewHub(ctx, sugar)
	}

	app.Poller = service.NewPoller(app.Registry, cfg.Dashboards.RefreshInterval, sugar)
	app.Poller.OnRefresh(func(name string) {
		if app.Hub != nil {
			app.Hub.BroadcastRefresh(name)
		}
		app.saveSnapshot(name)
	})

	app.API = api.NewAPI(cfg, app.Registry, app.Search, app.Wazuh, app.IRIS, app.MISP,
		app.SavedSearches, app.Notifier, app.Hub, app.Poller, sugar)

	return app, nil
}

// Start restores cached snapshots, then brings up the hub, the poller, and
// the API server.
func (a *App) Start() error {
	a.restoreSnapshots()

	if a.Hub != nil {
		go a.Hub.Start()
	}

	a.Poller.Start(a.ctx)

	go func() {
		if err := a.API.Start(); err != nil && err != http.ErrServerClosed {
			a.Sugar.Errorw("API server failed", "error", err)
			a.cancel()
		}
	}()

	a.Sugar.Info("Argus started")
	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM or internal failure.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-c:
		a.Sugar.Infow("Received signal, shutting down", "signal", sig)
	case <-a.ctx.Done():
		a.Sugar.Info("Context cancelled, shutting down")
	}
}

// Shutdown stops components in dependency order: pollers first so no fetch
// completes into a closing engine, then the websocket hub, then the HTTP
// server, then storage.
func (a *App) Shutdown() {
	a.Sugar.Info("Phase 1: Stopping pollers...")
	a.Poller.Stop()

	if a.Hub != nil {
		a.Sugar.Info("Phase 2: Stopping websocket hub...")
		a.Hub.Stop()
	}

	a.Sugar.Info("Phase 3: Stopping API server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.API.Stop(ctx); err != nil {
		a.Sugar.Warnw("API shutdown error", "error", err)
	}
	cancel()

	a.Sugar.Info("Phase 4: Closing storage...")
	if a.Snapshots != nil {
		a.saveAllSnapshots()
		if err := a.Snapshots.Close(); err != nil {
			a.Sugar.Warnw("Redis close error", "error", err)
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Warnw("SQLite close error", "error", err)
		}
	}

	a.cancel()
	a.Sugar.Info("Shutdown complete")
	a.Logger.Sync()
}

// restoreSnapshots seeds each dashboard from Redis so a restart shows the
// last known data, marked stale, instead of empty tables.
func (a *App) restoreSnapshots() {
	if a.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	for _, d := range a.Registry.All() {
		snap, ok, err := a.Snapshots.Load(ctx, d.Name())
		if err != nil {
			a.Sugar.Warnw("Snapshot load failed", "dashboard", d.Name(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		d.RestoreSnapshot(snap.Records, snap.Summary, snap.TakenAt)
	}
}

func (a *App) saveSnapshot(name string) {
	if a.Snapshots == nil {
		return
	}
	d := a.Registry.Get(name)
	if d == nil {
		return
	}
	summary, _, lastUpdated, _ := d.State()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.Snapshots.Save(ctx, name, storage.Snapshot{
		Records: d.Engine().Records(),
		Summary: summary,
		TakenAt: lastUpdated,
	})
	if err != nil {
		a.Sugar.Debugw("Snapshot save failed", "dashboard", name, "error", err)
	}
}

func (a *App) saveAllSnapshots() {
	for _, d := range a.Registry.All() {
		a.saveSnapshot(d.Name())
	}
}
