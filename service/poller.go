// Package service schedules dashboard refreshes. One poller drives all
// registered dashboards on a fixed interval, with at most one in-flight
// fetch per dashboard.
package service

import (
	"context"
	"sync"
	"time"

	"argus/dashboard"
	"argus/metrics"

	"go.uber.org/zap"
)

// Poller refreshes every registered dashboard on a fixed interval. A tick
// that arrives while a dashboard's previous fetch is still running is
// skipped for that dashboard rather than queued, so a slow upstream cannot
// stack up concurrent fetches.
type Poller struct {
	registry *dashboard.Registry
	interval time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[string]bool

	wg     sync.WaitGroup
	cancel context.CancelFunc

	// onRefresh, when set, is invoked after each successful refresh. The
	// websocket hub uses it to broadcast redraw events.
	onRefresh func(name string)
}

// NewPoller creates a poller over a dashboard registry.
func NewPoller(registry *dashboard.Registry, interval time.Duration, logger *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		registry: registry,
		interval: interval,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// OnRefresh registers a callback fired after each successful refresh. Must
// be called before Start.
func (p *Poller) OnRefresh(fn func(name string)) {
	p.onRefresh = fn
}

// Start begins polling. Every dashboard is refreshed once immediately, then
// on each tick. Returns after launching the loop.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Infow("Poller started", "interval", p.interval, "dashboards", len(p.registry.All()))

	p.refreshAll(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.refreshAll(ctx)
			}
		}
	}()
}

// Stop cancels the poll loop and waits for in-flight refreshes to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Poller stopped")
}

// RefreshNow triggers an immediate refresh of one dashboard, subject to the
// same single-flight guard as the ticker. Returns false when a fetch was
// already running.
func (p *Poller) RefreshNow(ctx context.Context, name string) bool {
	d := p.registry.Get(name)
	if d == nil {
		return false
	}
	return p.refreshOne(ctx, d, false)
}

func (p *Poller) refreshAll(ctx context.Context) {
	for _, d := range p.registry.All() {
		p.refreshOne(ctx, d, true)
	}
}

// refreshOne runs a dashboard refresh unless one is already in flight. With
// async it runs in a goroutine tracked by the poller's wait group.
func (p *Poller) refreshOne(ctx context.Context, d *dashboard.Dashboard, async bool) bool {
	name := d.Name()

	p.mu.Lock()
	if p.inflight[name] {
		p.mu.Unlock()
		metrics.FetchesSkipped.WithLabelValues(name).Inc()
		p.logger.Debugw("Refresh skipped, fetch in flight", "dashboard", name)
		return false
	}
	p.inflight[name] = true
	p.mu.Unlock()

	run := func() {
		defer func() {
			p.mu.Lock()
			p.inflight[name] = false
			p.mu.Unlock()
		}()

		if err := d.Refresh(ctx); err != nil {
			// Refresh already notified and marked the dashboard stale;
			// polling just continues.
			return
		}
		if p.onRefresh != nil {
			p.onRefresh(name)
		}
	}

	if async {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			run()
		}()
	} else {
		run()
	}
	return true
}
