package core

import (
	"sort"
	"strings"
	"sync"

	"argus/metrics"
)

// SortDirection orders a sorted column.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// SortKey is a field path plus direction. The zero value is replaced by the
// engine's default sort (primary timestamp field, most recent first).
type SortKey struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// ChangeListener is invoked after any mutating engine operation so the
// consumer (renderer, websocket hub) knows to redraw.
type ChangeListener func()

// EngineConfig parameterizes a TabularDataEngine per dashboard.
type EngineConfig struct {
	// PageSize is fixed per dashboard instance (observed sizes: 12, 20, 25).
	PageSize int
	// TimestampField is the record's primary timestamp field, used for the
	// default sort and compared as a parsed time.
	TimestampField string
	// NumericPolicy selects lenient or strict numeric filter coercion.
	NumericPolicy NumericPolicy
}

// TabularDataEngine owns a working set of records, applies filter
// predicates, sorts by a configurable key, and yields fixed-size pages.
// Every dashboard used to reimplement this pipeline independently; they all
// share this one engine now.
//
// The engine is mutated by a dashboard's poller goroutine and read by HTTP
// handlers, so unlike the browser original it guards its state with an
// RWMutex.
type TabularDataEngine struct {
	mu sync.RWMutex

	cfg EngineConfig

	records  []Record // full working set, replaced wholesale on refresh
	filtered []Record // filter-then-sort derivation of records
	filters  []FilterPredicate
	sortKey  SortKey
	page     int

	listeners []ChangeListener
}

// NewEngine creates an engine with the given per-dashboard configuration.
// Zero or negative page sizes fall back to 25.
func NewEngine(cfg EngineConfig) *TabularDataEngine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.TimestampField == "" {
		cfg.TimestampField = "timestamp"
	}
	return &TabularDataEngine{
		cfg:     cfg,
		sortKey: SortKey{Field: cfg.TimestampField, Direction: SortDescending},
		page:    1,
	}
}

// OnChange registers a listener fired after every mutating operation.
// Listeners run synchronously under no lock; they must not call back into
// mutating engine methods.
func (e *TabularDataEngine) OnChange(l ChangeListener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// SetRecords replaces the full working set, re-applies the current filters
// and sort, and resets to page 1. It never fails: nil input yields an empty
// display. Filter, sort, and page-size configuration survive the refresh.
func (e *TabularDataEngine) SetRecords(records []Record) {
	e.mu.Lock()
	e.records = records
	e.rederive()
	e.page = 1
	e.mu.Unlock()

	metrics.EngineOperations.WithLabelValues("set_records").Inc()
	e.notify()
}

// AddFilter appends a predicate to the active set, re-derives the filtered
// set, and resets to page 1.
func (e *TabularDataEngine) AddFilter(p FilterPredicate) {
	e.mu.Lock()
	e.filters = append(e.filters, p)
	e.rederive()
	e.page = 1
	e.mu.Unlock()

	metrics.EngineOperations.WithLabelValues("add_filter").Inc()
	e.notify()
}

// RemoveFilter deletes the predicate with the given ID. Removing an unknown
// ID is a no-op that still re-derives and resets paging, matching the
// "never fails" contract.
func (e *TabularDataEngine) RemoveFilter(id string) {
	e.mu.Lock()
	kept := e.filters[:0]
	for _, f := range e.filters {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	e.filters = kept
	e.rederive()
	e.page = 1
	e.mu.Unlock()

	metrics.EngineOperations.WithLabelValues("remove_filter").Inc()
	e.notify()
}

// ClearFilters drops every active predicate.
func (e *TabularDataEngine) ClearFilters() {
	e.mu.Lock()
	e.filters = nil
	e.rederive()
	e.page = 1
	e.mu.Unlock()

	metrics.EngineOperations.WithLabelValues("clear_filters").Inc()
	e.notify()
}

// Filters returns a copy of the active predicate set.
func (e *TabularDataEngine) Filters() []FilterPredicate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]FilterPredicate, len(e.filters))
	copy(out, e.filters)
	return out
}

// SetSort adopts a new sort key. When the field matches the current key and
// no explicit direction is given, the direction toggles. A new field
// defaults to descending. Sorting does not reset the current page: the
// record count is unchanged, only the order moves.
func (e *TabularDataEngine) SetSort(field string, direction SortDirection) {
	e.mu.Lock()
	switch {
	case direction == SortAscending || direction == SortDescending:
		e.sortKey = SortKey{Field: field, Direction: direction}
	case field == e.sortKey.Field:
		if e.sortKey.Direction == SortDescending {
			e.sortKey.Direction = SortAscending
		} else {
			e.sortKey.Direction = SortDescending
		}
	default:
		e.sortKey = SortKey{Field: field, Direction: SortDescending}
	}
	e.sortFiltered()
	e.mu.Unlock()

	metrics.EngineOperations.WithLabelValues("set_sort").Inc()
	e.notify()
}

// Sort returns the current sort key.
func (e *TabularDataEngine) Sort() SortKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortKey
}

// SetPage clamps and stores the current page number.
func (e *TabularDataEngine) SetPage(n int) {
	e.mu.Lock()
	e.page = clampPage(n, e.pageCountLocked())
	e.mu.Unlock()
}

// CurrentPage returns the stored page number.
func (e *TabularDataEngine) CurrentPage() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.page
}

// Page returns the 1-indexed window of the filtered+sorted set. Page
// numbers below 1 clamp to the first page; numbers beyond the last page
// return an empty page rather than an error so pagination UIs can probe
// past the end safely.
func (e *TabularDataEngine) Page(n int) []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if n < 1 {
		n = 1
	}
	start := (n - 1) * e.cfg.PageSize
	if start >= len(e.filtered) {
		return []Record{}
	}
	end := start + e.cfg.PageSize
	if end > len(e.filtered) {
		end = len(e.filtered)
	}
	out := make([]Record, end-start)
	copy(out, e.filtered[start:end])
	return out
}

// PageCount returns ceil(filteredCount / pageSize), minimum 1 even for an
// empty set so the pagination UI never shows zero pages.
func (e *TabularDataEngine) PageCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pageCountLocked()
}

// FilteredCount returns the size of the filtered set.
func (e *TabularDataEngine) FilteredCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.filtered)
}

// TotalCount returns the size of the full working set.
func (e *TabularDataEngine) TotalCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

// Records returns a copy of the full working set, used for snapshotting.
func (e *TabularDataEngine) Records() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Record, len(e.records))
	copy(out, e.records)
	return out
}

// PageSize returns the fixed per-instance page size.
func (e *TabularDataEngine) PageSize() int {
	return e.cfg.PageSize
}

// rederive rebuilds the filtered set from the working set: filter first,
// then sort. Filters never see sorted order; sort always applies to the
// already-filtered set. Caller holds the write lock.
func (e *TabularDataEngine) rederive() {
	filtered := make([]Record, 0, len(e.records))
	for _, r := range e.records {
		if e.matchesAll(r) {
			filtered = append(filtered, r)
		}
	}
	e.filtered = filtered
	e.sortFiltered()
}

func (e *TabularDataEngine) matchesAll(r Record) bool {
	for _, f := range e.filters {
		if !f.Matches(r, e.cfg.NumericPolicy) {
			return false
		}
	}
	return true
}

// sortFiltered orders the filtered set by the current sort key. The sort is
// stable so that reversing the direction reverses the output exactly and
// repeated refreshes render reproducibly. Caller holds the write lock.
func (e *TabularDataEngine) sortFiltered() {
	key := e.sortKey
	timestampField := key.Field == e.cfg.TimestampField

	sort.SliceStable(e.filtered, func(i, j int) bool {
		less := recordLess(e.filtered[i], e.filtered[j], key.Field, timestampField)
		if key.Direction == SortDescending {
			return recordLess(e.filtered[j], e.filtered[i], key.Field, timestampField)
		}
		return less
	})
}

// recordLess compares two records on one field. The primary timestamp field
// compares as parsed time; other fields compare numerically when both sides
// are numbers and lexicographically otherwise.
func recordLess(a, b Record, field string, timestampField bool) bool {
	av := a.FieldPath(field)
	bv := b.FieldPath(field)

	if timestampField {
		at, aok := CoerceTime(av)
		bt, bok := CoerceTime(bv)
		if aok && bok {
			return at.Before(bt)
		}
		// Unparseable timestamps sort before parseable ones
		if aok != bok {
			return !aok
		}
	}

	if an, aok := CoerceFloat(av); aok {
		if bn, bok := CoerceFloat(bv); bok {
			return an < bn
		}
	}
	return strings.ToLower(CoerceString(av)) < strings.ToLower(CoerceString(bv))
}

func (e *TabularDataEngine) pageCountLocked() int {
	pages := (len(e.filtered) + e.cfg.PageSize - 1) / e.cfg.PageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}

func clampPage(n, pageCount int) int {
	if n < 1 {
		return 1
	}
	if n > pageCount {
		return pageCount
	}
	return n
}

func (e *TabularDataEngine) notify() {
	e.mu.RLock()
	listeners := make([]ChangeListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for _, l := range listeners {
		l()
	}
}
