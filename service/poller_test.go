package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"argus/core"
	"argus/dashboard"
	"argus/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testDashboard(name string, fetch dashboard.FetchFunc) *dashboard.Dashboard {
	engine := core.NewEngine(core.EngineConfig{PageSize: 25})
	notifier := notify.NewCenter("", 10, testLogger())
	return dashboard.New(name, engine, fetch, notifier, testLogger())
}

func TestPollerRefreshesOnStart(t *testing.T) {
	var calls int32
	d := testDashboard("alerts", func(ctx context.Context) ([]core.Record, dashboard.Summary, error) {
		atomic.AddInt32(&calls, 1)
		return []core.Record{{"id": "a"}}, dashboard.Summary{}, nil
	})
	registry := dashboard.NewRegistry()
	registry.Register(d)

	p := NewPoller(registry, time.Hour, testLogger())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, d.Engine().TotalCount())
}

func TestPollerTicks(t *testing.T) {
	var calls int32
	d := testDashboard("alerts", func(ctx context.Context) ([]core.Record, dashboard.Summary, error) {
		atomic.AddInt32(&calls, 1)
		return nil, dashboard.Summary{}, nil
	})
	registry := dashboard.NewRegistry()
	registry.Register(d)

	p := NewPoller(registry, 10*time.Millisecond, testLogger())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestPollerSkipsWhileFetchInFlight(t *testing.T) {
	block := make(chan struct{})
	var calls int32
	d := testDashboard("slow", func(ctx context.Context) ([]core.Record, dashboard.Summary, error) {
		atomic.AddInt32(&calls, 1)
		<-block
		return nil, dashboard.Summary{}, nil
	})
	registry := dashboard.NewRegistry()
	registry.Register(d)

	p := NewPoller(registry, 5*time.Millisecond, testLogger())
	p.Start(context.Background())

	// Several ticks pass while the first fetch is stuck; none of them may
	// start a second one.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(block)
	p.Stop()
}

func TestPollerStopCancelsLoop(t *testing.T) {
	var calls int32
	d := testDashboard("alerts", func(ctx context.Context) ([]core.Record, dashboard.Summary, error) {
		atomic.AddInt32(&calls, 1)
		return nil, dashboard.Summary{}, nil
	})
	registry := dashboard.NewRegistry()
	registry.Register(d)

	p := NewPoller(registry, 10*time.Millisecond, testLogger())
	p.Start(context.Background())
	p.Stop()

	settled := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&calls))
}

func TestPollerOnRefreshCallback(t *testing.T) {
	d := testDashboard("alerts", func(ctx context.Context) ([]core.Record, dashboard.Summary, error) {
		return nil, dashboard.Summary{}, nil
	})
	registry := dashboard.NewRegistry()
	registry.Register(d)

	refreshed := make(chan string, 1)
	p := NewPoller(registry, time.Hour, testLogger())
	p.OnRefresh(func(name string) { refreshed <- name })
	p.Start(context.Background())
	defer p.Stop()

	select {
	case name := <-refreshed:
		assert.Equal(t, "alerts", name)
	case <-time.After(time.Second):
		t.Fatal("refresh callback never fired")
	}
}

func TestRefreshNowUnknownDashboard(t *testing.T) {
	p := NewPoller(dashboard.NewRegistry(), time.Hour, testLogger())
	assert.False(t, p.RefreshNow(context.Background(), "nope"))
}
