package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *SavedSearchStore {
	t.Helper()
	logger := zap.NewNop().Sugar()

	db, err := NewSQLite(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSavedSearchStore(db, logger)
	require.NoError(t, err)
	return store
}

func TestSavedSearchCreateAndGet(t *testing.T) {
	store := testStore(t)

	search := &SavedSearch{
		Name:        "High severity last 24h",
		Description: "All alerts at rule level 10 and above",
		Query:       json.RawMessage(`{"query":"rule.level:10","time_range":"24h"}`),
		Tags:        []string{"severity", "daily"},
	}
	require.NoError(t, store.Create(search))
	assert.NotEmpty(t, search.ID)

	got, err := store.Get(search.ID)
	require.NoError(t, err)
	assert.Equal(t, "High severity last 24h", got.Name)
	assert.JSONEq(t, `{"query":"rule.level:10","time_range":"24h"}`, string(got.Query))
	assert.Equal(t, []string{"severity", "daily"}, got.Tags)
	assert.Equal(t, 0, got.UsageCount)
}

func TestSavedSearchListNewestFirst(t *testing.T) {
	store := testStore(t)

	for _, name := range []string{"first", "second"} {
		require.NoError(t, store.Create(&SavedSearch{
			Name:  name,
			Query: json.RawMessage(`{}`),
		}))
	}

	searches, err := store.List()
	require.NoError(t, err)
	require.Len(t, searches, 2)
}

func TestSavedSearchListEmptyIsNotNil(t *testing.T) {
	store := testStore(t)

	searches, err := store.List()
	require.NoError(t, err)
	assert.NotNil(t, searches)
	assert.Empty(t, searches)
}

func TestSavedSearchDelete(t *testing.T) {
	store := testStore(t)

	search := &SavedSearch{Name: "doomed", Query: json.RawMessage(`{}`)}
	require.NoError(t, store.Create(search))

	require.NoError(t, store.Delete(search.ID))
	_, err := store.Get(search.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(search.ID), ErrNotFound)
}

func TestSavedSearchIncrementUsage(t *testing.T) {
	store := testStore(t)

	search := &SavedSearch{Name: "popular", Query: json.RawMessage(`{}`)}
	require.NoError(t, store.Create(search))

	require.NoError(t, store.IncrementUsage(search.ID))
	require.NoError(t, store.IncrementUsage(search.ID))

	got, err := store.Get(search.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
}
