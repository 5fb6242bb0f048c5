package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"argus/core"
	"argus/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testNotifier() *notify.Center {
	return notify.NewCenter("", 10, testLogger())
}

func testEngine() *core.TabularDataEngine {
	return core.NewEngine(core.EngineConfig{PageSize: 25})
}

func TestRefreshReplacesRecords(t *testing.T) {
	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		return []core.Record{
			{"id": "a", "timestamp": "2024-06-01T10:00:00Z"},
			{"id": "b", "timestamp": "2024-06-01T11:00:00Z"},
		}, Summary{"total": 2}, nil
	}
	d := New("test", testEngine(), fetch, testNotifier(), testLogger())

	require.NoError(t, d.Refresh(context.Background()))

	assert.Equal(t, 2, d.Engine().TotalCount())
	summary, stale, lastUpdated, lastError := d.State()
	assert.Equal(t, 2, summary["total"])
	assert.False(t, stale)
	assert.False(t, lastUpdated.IsZero())
	assert.Empty(t, lastError)
}

func TestRefreshFailurePreservesRecords(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		calls++
		if calls == 1 {
			return []core.Record{{"id": "a"}}, Summary{"total": 1}, nil
		}
		return nil, nil, errors.New("indexer unreachable")
	}
	notifier := testNotifier()
	d := New("test", testEngine(), fetch, notifier, testLogger())

	require.NoError(t, d.Refresh(context.Background()))
	err := d.Refresh(context.Background())
	require.Error(t, err)

	// Failure keeps the previous working set and flags it stale.
	assert.Equal(t, 1, d.Engine().TotalCount())
	summary, stale, _, lastError := d.State()
	assert.Equal(t, 1, summary["total"])
	assert.True(t, stale)
	assert.Contains(t, lastError, "indexer unreachable")

	// And an error notification was emitted.
	active := notifier.Active()
	require.Len(t, active, 1)
	assert.Equal(t, notify.SeverityError, active[0].Severity)
	assert.Equal(t, "test", active[0].Source)
}

func TestRefreshRecoveryClearsStale(t *testing.T) {
	fail := true
	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		if fail {
			return nil, nil, errors.New("down")
		}
		return []core.Record{{"id": "a"}}, Summary{}, nil
	}
	d := New("test", testEngine(), fetch, testNotifier(), testLogger())

	require.Error(t, d.Refresh(context.Background()))
	_, stale, _, _ := d.State()
	assert.True(t, stale)

	fail = false
	require.NoError(t, d.Refresh(context.Background()))
	_, stale, _, lastError := d.State()
	assert.False(t, stale)
	assert.Empty(t, lastError)
}

func TestRefreshDiscardsOutOfOrderCompletion(t *testing.T) {
	release := make(chan struct{})
	calls := 0
	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		calls++
		if calls == 1 {
			// Slow first fetch: returns old data after the second one.
			<-release
			return []core.Record{{"id": "old"}}, Summary{"gen": 1}, nil
		}
		return []core.Record{{"id": "new"}}, Summary{"gen": 2}, nil
	}
	d := New("test", testEngine(), fetch, testNotifier(), testLogger())

	done := make(chan error, 1)
	go func() { done <- d.Refresh(context.Background()) }()

	// Let the slow fetch get issued first.
	for {
		d.mu.RLock()
		issued := d.issued
		d.mu.RUnlock()
		if issued >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, d.Refresh(context.Background()))
	close(release)
	require.NoError(t, <-done)

	// The late completion of the older fetch must not clobber newer data.
	summary, _, _, _ := d.State()
	assert.Equal(t, 2, summary["gen"])
	page := d.Engine().Page(1)
	require.Len(t, page, 1)
	assert.Equal(t, "new", page[0]["id"])
}

func TestRestoreSnapshotMarksStale(t *testing.T) {
	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		return nil, Summary{}, nil
	}
	d := New("test", testEngine(), fetch, testNotifier(), testLogger())

	taken := time.Now().Add(-time.Hour).UTC()
	d.RestoreSnapshot([]core.Record{{"id": "cached"}}, Summary{"total": 1}, taken)

	assert.Equal(t, 1, d.Engine().TotalCount())
	summary, stale, lastUpdated, _ := d.State()
	assert.Equal(t, 1, summary["total"])
	assert.True(t, stale)
	assert.Equal(t, taken, lastUpdated)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	fetch := func(ctx context.Context) ([]core.Record, Summary, error) { return nil, Summary{}, nil }

	a := New("alpha", testEngine(), fetch, testNotifier(), testLogger())
	b := New("beta", testEngine(), fetch, testNotifier(), testLogger())
	r.Register(a)
	r.Register(b)

	assert.Same(t, a, r.Get("alpha"))
	assert.Same(t, b, r.Get("beta"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.All(), 2)
}
