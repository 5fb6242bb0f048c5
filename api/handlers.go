package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"argus/dashboard"
	"argus/metrics"
	"argus/storage"

	"github.com/gorilla/mux"
)

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Errorw("Failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

// serveEngine renders the pagination envelope for one dashboard's engine,
// applying any filter and sort parameters first. Filter parameters replace
// the active predicate set; requests without them leave it untouched so
// paging does not clear an applied filter.
func (a *API) serveEngine(w http.ResponseWriter, r *http.Request, name string) {
	d := a.registry.Get(name)
	if d == nil {
		a.writeError(w, http.StatusNotFound, "unknown dashboard: "+name)
		return
	}

	engine := d.Engine()

	if filters := ParseFilterParams(r); len(filters) > 0 || r.URL.Query().Has("filter") {
		engine.ClearFilters()
		for _, f := range filters {
			engine.AddFilter(f)
		}
	}
	if field, direction, ok := ParseSortParam(r); ok {
		engine.SetSort(field, direction)
	}

	page := ParsePage(r)
	engine.SetPage(page)
	items := engine.Page(engine.CurrentPage())

	_, stale, lastUpdated, _ := d.State()
	metrics.RecordsServed.WithLabelValues(name).Add(float64(len(items)))

	a.writeJSON(w, http.StatusOK, PaginationResponse{
		Items:       items,
		Total:       engine.FilteredCount(),
		Page:        engine.CurrentPage(),
		Limit:       engine.PageSize(),
		TotalPages:  engine.PageCount(),
		Stale:       stale,
		LastUpdated: lastUpdated,
	})
}

// getDashboardData returns the overview snapshot: summary metrics, chart
// series, and threat indicators.
func (a *API) getDashboardData(w http.ResponseWriter, r *http.Request) {
	d := a.registry.Get("overview")
	if d == nil {
		a.writeError(w, http.StatusServiceUnavailable, "overview dashboard not running")
		return
	}
	summary, stale, lastUpdated, lastError := d.State()
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":      summary,
		"stale":        stale,
		"last_updated": lastUpdated,
		"last_error":   lastError,
	})
}

func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	a.serveEngine(w, r, "overview")
}

func (a *API) getFIMEvents(w http.ResponseWriter, r *http.Request) {
	a.serveEngine(w, r, "fim")
}

func (a *API) getUBAAnomalies(w http.ResponseWriter, r *http.Request) {
	a.serveEngine(w, r, "uba")
}

func (a *API) getUBADetectors(w http.ResponseWriter, r *http.Request) {
	if a.wazuh == nil {
		a.writeError(w, http.StatusServiceUnavailable, "indexer client not configured")
		return
	}
	resp, err := a.wazuh.Detectors(r.Context())
	if err != nil {
		a.writeError(w, http.StatusBadGateway, "detector listing failed: "+err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"detectors": dashboard.ProcessDetectors(resp),
	})
}

func (a *API) getThreatIntelAlerts(w http.ResponseWriter, r *http.Request) {
	a.serveEngine(w, r, "threat_intel")
}

func (a *API) getThreatIntelFeeds(w http.ResponseWriter, r *http.Request) {
	d := a.registry.Get("threat_intel")
	if d == nil {
		a.writeError(w, http.StatusServiceUnavailable, "threat intel dashboard not running")
		return
	}
	summary, stale, lastUpdated, _ := d.State()
	feeds, ok := summary["feeds"]
	if !ok {
		a.writeError(w, http.StatusServiceUnavailable, "feed panel disabled: MISP is not configured")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"feeds":        feeds,
		"stale":        stale,
		"last_updated": lastUpdated,
	})
}

func (a *API) getThreatIntelStats(w http.ResponseWriter, r *http.Request) {
	d := a.registry.Get("threat_intel")
	if d == nil {
		a.writeError(w, http.StatusServiceUnavailable, "threat intel dashboard not running")
		return
	}
	summary, stale, lastUpdated, _ := d.State()

	stats := make(map[string]interface{}, len(summary))
	for k, v := range summary {
		if k == "feeds" {
			continue
		}
		stats[k] = v
	}
	stats["stale"] = stale
	stats["last_updated"] = lastUpdated
	a.writeJSON(w, http.StatusOK, stats)
}

func (a *API) getCases(w http.ResponseWriter, r *http.Request) {
	a.serveEngine(w, r, "cases")
}

func (a *API) getCaseSummary(w http.ResponseWriter, r *http.Request) {
	d := a.registry.Get("cases")
	if d == nil {
		a.writeError(w, http.StatusServiceUnavailable, "case management is not configured")
		return
	}
	summary, stale, lastUpdated, _ := d.State()
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":      summary,
		"stale":        stale,
		"last_updated": lastUpdated,
	})
}

// postSearchQuery validates and runs an ad-hoc search, then returns the
// first page of results from the search engine.
func (a *API) postSearchQuery(w http.ResponseWriter, r *http.Request) {
	if a.search == nil {
		a.writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	var q dashboard.SearchQuery
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&q); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := a.search.Execute(r.Context(), q); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.serveEngine(w, r, "search")
}

func (a *API) getSearchFields(w http.ResponseWriter, r *http.Request) {
	fields := dashboard.SearchFields()
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(fields),
		"fields": fields,
	})
}

func (a *API) getSavedSearches(w http.ResponseWriter, r *http.Request) {
	if a.savedSearches == nil {
		a.writeError(w, http.StatusServiceUnavailable, "saved searches are not configured")
		return
	}
	searches, err := a.savedSearches.List()
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"saved_searches": searches})
}

func (a *API) createSavedSearch(w http.ResponseWriter, r *http.Request) {
	if a.savedSearches == nil {
		a.writeError(w, http.StatusServiceUnavailable, "saved searches are not configured")
		return
	}

	var search storage.SavedSearch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&search); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if search.Name == "" {
		a.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := a.savedSearches.Create(&search); err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, http.StatusCreated, search)
}

func (a *API) deleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	if a.savedSearches == nil {
		a.writeError(w, http.StatusServiceUnavailable, "saved searches are not configured")
		return
	}

	id := mux.Vars(r)["id"]
	err := a.savedSearches.Delete(id)
	if errors.Is(err, storage.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "saved search not found")
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getNotifications(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": a.notifier.Active(),
	})
}

func (a *API) dismissNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !a.notifier.Dismiss(id) {
		a.writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// triggerRefresh forces one dashboard to refresh outside its poll cycle.
func (a *API) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	if a.poller == nil {
		a.writeError(w, http.StatusServiceUnavailable, "poller not running")
		return
	}
	name := mux.Vars(r)["dashboard"]
	if a.registry.Get(name) == nil {
		a.writeError(w, http.StatusNotFound, "unknown dashboard: "+name)
		return
	}
	started := a.poller.RefreshNow(r.Context(), name)
	a.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"dashboard": name,
		"started":   started,
	})
}

// healthCheck pings each configured upstream with a short timeout.
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true

	if a.wazuh != nil {
		if err := a.wazuh.Ping(ctx); err != nil {
			components["wazuh"] = "unreachable"
			healthy = false
		} else {
			components["wazuh"] = "ok"
		}
	}
	if a.iris != nil {
		if a.iris.TestConnection(ctx) {
			components["iris"] = "ok"
		} else {
			components["iris"] = "unreachable"
			healthy = false
		}
	}
	if a.misp != nil {
		if a.misp.TestConnection(ctx) {
			components["misp"] = "ok"
		} else {
			components["misp"] = "unreachable"
			healthy = false
		}
	}

	dashboards := map[string]interface{}{}
	for _, d := range a.registry.All() {
		_, stale, lastUpdated, lastError := d.State()
		dashboards[d.Name()] = map[string]interface{}{
			"stale":        stale,
			"last_updated": lastUpdated,
			"last_error":   lastError,
			"records":      d.Engine().TotalCount(),
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	a.writeJSON(w, status, map[string]interface{}{
		"status":     state,
		"components": components,
		"dashboards": dashboards,
		"timestamp":  time.Now().UTC(),
	})
}
