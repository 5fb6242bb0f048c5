// Package api serves the dashboard data over REST plus a websocket channel
// for refresh events.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"argus/config"
	"argus/dashboard"
	"argus/iris"
	"argus/misp"
	"argus/notify"
	"argus/service"
	"argus/storage"
	"argus/wazuh"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateLimiterEntry tracks one client IP's limiter and its last use, so idle
// entries can be evicted.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API is the HTTP server over the dashboard registry.
type API struct {
	router *mux.Router
	server *http.Server

	registry      *dashboard.Registry
	search        *dashboard.Search
	wazuh         *wazuh.Client
	iris          *iris.Client
	misp          *misp.Client
	savedSearches *storage.SavedSearchStore
	notifier      *notify.Center
	hub           *Hub
	poller        *service.Poller

	config *config.Config
	logger *zap.SugaredLogger

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
}

// NewAPI wires the server. iris, misp, savedSearches, hub, and poller may
// be nil when the corresponding feature is disabled; the affected routes
// then report 503.
func NewAPI(cfg *config.Config, registry *dashboard.Registry, search *dashboard.Search,
	wz *wazuh.Client, irisClient *iris.Client, mispClient *misp.Client,
	savedSearches *storage.SavedSearchStore, notifier *notify.Center,
	hub *Hub, poller *service.Poller, logger *zap.SugaredLogger) *API {

	a := &API{
		router:        mux.NewRouter(),
		registry:      registry,
		search:        search,
		wazuh:         wz,
		iris:          irisClient,
		misp:          mispClient,
		savedSearches: savedSearches,
		notifier:      notifier,
		hub:           hub,
		poller:        poller,
		config:        cfg,
		logger:        logger,
		rateLimiters:  make(map[string]*rateLimiterEntry),
		stopCh:        make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)
	a.router.Use(a.loggingMiddleware)

	a.router.HandleFunc("/api/dashboard-data", a.getDashboardData).Methods("GET")
	a.router.HandleFunc("/api/alerts", a.getAlerts).Methods("GET")
	a.router.HandleFunc("/api/fim/events", a.getFIMEvents).Methods("GET")
	a.router.HandleFunc("/api/uba/anomalies", a.getUBAAnomalies).Methods("GET")
	a.router.HandleFunc("/api/uba/detectors", a.getUBADetectors).Methods("GET")
	a.router.HandleFunc("/api/threat-intel/alerts", a.getThreatIntelAlerts).Methods("GET")
	a.router.HandleFunc("/api/threat-intel/feeds", a.getThreatIntelFeeds).Methods("GET")
	a.router.HandleFunc("/api/threat-intel/stats", a.getThreatIntelStats).Methods("GET")
	a.router.HandleFunc("/api/case-management/cases", a.getCases).Methods("GET")
	a.router.HandleFunc("/api/case-management/summary", a.getCaseSummary).Methods("GET")
	a.router.HandleFunc("/api/search/query", a.postSearchQuery).Methods("POST")
	a.router.HandleFunc("/api/search/fields", a.getSearchFields).Methods("GET")
	a.router.HandleFunc("/api/search/saved", a.getSavedSearches).Methods("GET")
	a.router.HandleFunc("/api/search/saved", a.createSavedSearch).Methods("POST")
	a.router.HandleFunc("/api/search/saved/{id}", a.deleteSavedSearch).Methods("DELETE")
	a.router.HandleFunc("/api/notifications", a.getNotifications).Methods("GET")
	a.router.HandleFunc("/api/notifications/{id}/dismiss", a.dismissNotification).Methods("POST")
	a.router.HandleFunc("/api/refresh/{dashboard}", a.triggerRefresh).Methods("POST")
	a.router.HandleFunc("/api/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())

	if a.hub != nil {
		a.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			serveWs(a.hub, a.logger, w, r)
		})
	}
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (a *API) Start() error {
	addr := fmt.Sprintf("%s:%d", a.config.API.Host, a.config.API.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	a.logger.Infow("API listening", "addr", addr)
	return a.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range a.config.API.AllowedOrigins {
			if allowed == "*" || allowed == origin {
				if allowed == "*" {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !a.limiterFor(ip).Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debugw("Request handled",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (a *API) limiterFor(ip string) *rate.Limiter {
	a.rateLimitersMu.Lock()
	defer a.rateLimitersMu.Unlock()

	entry, ok := a.rateLimiters[ip]
	if !ok {
		entry = &rateLimiterEntry{
			limiter: rate.NewLimiter(
				rate.Limit(a.config.API.RateLimit.RequestsPerSecond),
				a.config.API.RateLimit.Burst,
			),
		}
		a.rateLimiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanupRateLimiters drops limiters for IPs not seen in ten minutes.
func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			a.rateLimitersMu.Lock()
			for ip, entry := range a.rateLimiters {
				if entry.lastSeen.Before(cutoff) {
					delete(a.rateLimiters, ip)
				}
			}
			a.rateLimitersMu.Unlock()
		}
	}
}
