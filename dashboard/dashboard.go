// Package dashboard implements the seven SOC dashboard modules. Each module
// owns one TabularDataEngine, a processor that flattens upstream JSON into
// records, and a refresh entry point driven by its poller. The filter,
// sort, and pagination behavior every module used to duplicate lives in the
// shared engine.
package dashboard

import (
	"context"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/notify"

	"go.uber.org/zap"
)

// Summary is the per-dashboard headline metrics block rendered above the
// table. Shapes differ per module, so it stays schemaless.
type Summary map[string]interface{}

// FetchFunc pulls and processes one refresh worth of data. It returns the
// full replacement record set plus the recomputed summary. Errors are
// handled at this boundary; the engine only ever sees valid (possibly
// empty) record sets.
type FetchFunc func(ctx context.Context) ([]core.Record, Summary, error)

// Dashboard is one dashboard module: an engine plus refresh state.
type Dashboard struct {
	name   string
	engine *core.TabularDataEngine
	fetch  FetchFunc

	mu          sync.RWMutex
	summary     Summary
	stale       bool
	lastUpdated time.Time
	lastError   string

	// Fetches are tagged with a monotonically increasing sequence number;
	// a completion whose tag is not newer than the last applied one is
	// discarded. This closes the slow-then-fast response reordering gap
	// the browser dashboards never guarded against.
	issued  uint64
	applied uint64

	notifier *notify.Center
	logger   *zap.SugaredLogger
}

// New creates a dashboard module around a fetch function.
func New(name string, engine *core.TabularDataEngine, fetch FetchFunc, notifier *notify.Center, logger *zap.SugaredLogger) *Dashboard {
	return &Dashboard{
		name:     name,
		engine:   engine,
		fetch:    fetch,
		summary:  Summary{},
		notifier: notifier,
		logger:   logger,
	}
}

// Name returns the dashboard identifier used in routes and metrics.
func (d *Dashboard) Name() string { return d.name }

// Engine exposes the dashboard's tabular engine to the API layer.
func (d *Dashboard) Engine() *core.TabularDataEngine { return d.engine }

// Refresh runs one fetch cycle. On success the working set is replaced
// wholesale and the staleness flag clears. On failure the previous records
// are preserved and marked stale: stale-but-present data beats blanking the
// view, so the inconsistent blank-on-error behavior some of the original
// dashboards had is gone.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.issued++
	seq := d.issued
	d.mu.Unlock()

	start := time.Now()
	metrics.FetchesTotal.WithLabelValues(d.name).Inc()

	records, summary, err := d.fetch(ctx)
	metrics.FetchDuration.WithLabelValues(d.name).Observe(time.Since(start).Seconds())

	d.mu.Lock()
	if seq <= d.applied {
		d.mu.Unlock()
		metrics.StaleResponsesDiscarded.WithLabelValues(d.name).Inc()
		d.logger.Debugw("Discarded stale fetch completion", "dashboard", d.name, "seq", seq)
		return nil
	}
	d.applied = seq

	if err != nil {
		d.stale = true
		d.lastError = err.Error()
		d.mu.Unlock()

		metrics.FetchFailures.WithLabelValues(d.name).Inc()
		d.notifier.Notify(notify.SeverityError, d.name, "refresh failed: %v", err)
		return err
	}

	d.summary = summary
	d.stale = false
	d.lastError = ""
	d.lastUpdated = time.Now().UTC()
	d.mu.Unlock()

	d.engine.SetRecords(records)
	d.logger.Infow("Dashboard refreshed", "dashboard", d.name, "records", len(records))
	return nil
}

// State reports the refresh bookkeeping the API attaches to every page
// response.
func (d *Dashboard) State() (summary Summary, stale bool, lastUpdated time.Time, lastError string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.summary, d.stale, d.lastUpdated, d.lastError
}

// RestoreSnapshot seeds the dashboard from a cached snapshot (typically
// Redis after a restart) and marks it stale until the first live refresh.
func (d *Dashboard) RestoreSnapshot(records []core.Record, summary Summary, takenAt time.Time) {
	d.mu.Lock()
	d.summary = summary
	d.stale = true
	d.lastUpdated = takenAt
	d.mu.Unlock()

	d.engine.SetRecords(records)
	d.logger.Infow("Dashboard restored from snapshot", "dashboard", d.name, "records", len(records), "taken_at", takenAt)
}

// Registry holds the dashboard modules by name.
type Registry struct {
	mu         sync.RWMutex
	dashboards map[string]*Dashboard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dashboards: make(map[string]*Dashboard)}
}

// Register adds a dashboard. Later registrations with the same name win.
func (r *Registry) Register(d *Dashboard) {
	r.mu.Lock()
	r.dashboards[d.Name()] = d
	r.mu.Unlock()
}

// Get returns the named dashboard, or nil.
func (r *Registry) Get(name string) *Dashboard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dashboards[name]
}

// All returns every registered dashboard.
func (r *Registry) All() []*Dashboard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Dashboard, 0, len(r.dashboards))
	for _, d := range r.dashboards {
		out = append(out, d)
	}
	return out
}
