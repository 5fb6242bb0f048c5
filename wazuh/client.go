// Package wazuh is a read-only client for the Wazuh indexer (OpenSearch)
// search API, the upstream source for the alert, FIM, and anomaly
// dashboards.
package wazuh

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"argus/config"
	"argus/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// SearchResponse is the subset of the OpenSearch search envelope the
// dashboards consume.
type SearchResponse struct {
	Hits         Hits                       `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations,omitempty"`
}

// Hits carries the result window and the total match count.
type Hits struct {
	Total Total `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Total is the match count wrapper introduced in OpenSearch 7.x.
type Total struct {
	Value int `json:"value"`
}

// Hit is one indexed document.
type Hit struct {
	ID     string                 `json:"_id"`
	Index  string                 `json:"_index"`
	Score  float64                `json:"_score"`
	Source map[string]interface{} `json:"_source"`
}

// Client issues authenticated search requests against the indexer.
// Identical queries within the cache TTL are served from an in-memory
// expirable LRU instead of hitting the indexer again, the same five-minute
// response reuse the original dashboard client did.
type Client struct {
	baseURL    string
	index      string
	username   string
	password   string
	maxAlerts  int
	httpClient *http.Client
	cache      *expirable.LRU[string, *SearchResponse]
	logger     *zap.SugaredLogger
}

const cacheSize = 128

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config, logger *zap.SugaredLogger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.Wazuh.VerifySSL}, // #nosec G402 -- self-signed indexer certs are the norm in lab deployments
	}

	return &Client{
		baseURL:   cfg.WazuhBaseURL(),
		index:     cfg.Wazuh.Index,
		username:  cfg.Wazuh.Username,
		password:  cfg.Wazuh.Password,
		maxAlerts: cfg.Wazuh.MaxAlerts,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		cache:  expirable.NewLRU[string, *SearchResponse](cacheSize, nil, cfg.Wazuh.CacheTTL),
		logger: logger,
	}
}

// Search executes a raw search query against an endpoint path relative to
// the base URL. Responses are cached per (endpoint, query) pair.
func (c *Client) Search(ctx context.Context, endpoint string, query map[string]interface{}) (*SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal search query: %w", err)
	}

	cacheKey := endpoint + ":" + string(body)
	if cached, ok := c.cache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("wazuh").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("wazuh").Inc()

	url := c.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	c.logger.Debugw("Indexer search", "endpoint", endpoint, "bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s: unexpected status %d: %s", endpoint, resp.StatusCode, truncate(string(payload), 200))
	}

	var result SearchResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	c.cache.Add(cacheKey, &result)
	return &result, nil
}

// searchIndex runs a query against the configured alert index pattern.
func (c *Client) searchIndex(ctx context.Context, query map[string]interface{}) (*SearchResponse, error) {
	return c.Search(ctx, c.index+"/_search", query)
}

// AlertsByTimeRange fetches alerts in [start, end] newest first, with the
// severity/agent/timeline aggregations the overview charts are built from.
func (c *Client) AlertsByTimeRange(ctx context.Context, start, end time.Time) (*SearchResponse, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"@timestamp": map[string]interface{}{
					"gte":    start.Format(time.RFC3339),
					"lte":    end.Format(time.RFC3339),
					"format": "strict_date_optional_time",
				},
			},
		},
		"size": c.maxAlerts,
		"sort": []interface{}{
			map[string]interface{}{"@timestamp": map[string]interface{}{"order": "desc"}},
		},
		"aggs": map[string]interface{}{
			"severity_stats": map[string]interface{}{
				"stats": map[string]interface{}{"field": "rule.level"},
			},
			"top_agents": map[string]interface{}{
				"terms": map[string]interface{}{"field": "agent.name.keyword", "size": 10},
			},
			"alerts_over_time": map[string]interface{}{
				"date_histogram": map[string]interface{}{"field": "@timestamp", "calendar_interval": "hour"},
			},
		},
	}
	return c.searchIndex(ctx, query)
}

// TodaysAlerts fetches alerts since local midnight.
func (c *Client) TodaysAlerts(ctx context.Context) (*SearchResponse, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return c.AlertsByTimeRange(ctx, midnight, now)
}

// SeveritySummary fetches the severity-level breakdown aggregation.
func (c *Client) SeveritySummary(ctx context.Context) (*SearchResponse, error) {
	query := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"severity_breakdown": map[string]interface{}{
				"terms": map[string]interface{}{"field": "rule.level", "size": 15},
			},
			"total_alerts": map[string]interface{}{
				"value_count": map[string]interface{}{"field": "rule.level"},
			},
		},
	}
	return c.searchIndex(ctx, query)
}

// MitreCoverage fetches MITRE ATT&CK tactic and technique aggregations.
func (c *Client) MitreCoverage(ctx context.Context) (*SearchResponse, error) {
	query := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"mitre_tactics": map[string]interface{}{
				"terms": map[string]interface{}{"field": "rule.mitre.tactic.keyword", "size": 20},
			},
			"mitre_techniques": map[string]interface{}{
				"terms": map[string]interface{}{"field": "rule.mitre.technique.keyword", "size": 50},
			},
		},
	}
	return c.searchIndex(ctx, query)
}

// FIMEvents fetches syscheck events in [start, end] newest first.
func (c *Client) FIMEvents(ctx context.Context, start, end time.Time) (*SearchResponse, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"range": map[string]interface{}{
							"@timestamp": map[string]interface{}{
								"gte": start.Format(time.RFC3339),
								"lte": end.Format(time.RFC3339),
							},
						},
					},
					map[string]interface{}{
						"term": map[string]interface{}{"rule.groups": "syscheck"},
					},
				},
			},
		},
		"size": c.maxAlerts,
		"sort": []interface{}{
			map[string]interface{}{"@timestamp": map[string]interface{}{"order": "desc"}},
		},
	}
	return c.searchIndex(ctx, query)
}

// ThreatAlerts fetches MISP IoC-match alerts, excluding the connector's own
// error noise.
func (c *Client) ThreatAlerts(ctx context.Context, start, end time.Time) (*SearchResponse, error) {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"terms": map[string]interface{}{"rule.groups": []string{"misp", "misp_alert"}},
			},
			map[string]interface{}{
				"exists": map[string]interface{}{"field": "data.misp"},
			},
		},
		"must_not": []interface{}{
			map[string]interface{}{"wildcard": map[string]interface{}{"rule.description": "*Error*"}},
			map[string]interface{}{"wildcard": map[string]interface{}{"rule.description": "*error*"}},
		},
	}
	if !start.IsZero() && !end.IsZero() {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{
				"range": map[string]interface{}{
					"timestamp": map[string]interface{}{
						"gte": start.Format(time.RFC3339),
						"lte": end.Format(time.RFC3339),
					},
				},
			},
		}
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  c.maxAlerts,
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		},
		"_source": []string{"timestamp", "agent", "manager", "rule", "data.misp", "location", "decoder"},
	}
	return c.searchIndex(ctx, query)
}

// AnomalyResults fetches anomaly-detection results above the given grade,
// optionally limited to one detector.
func (c *Client) AnomalyResults(ctx context.Context, detectorID string, minGrade float64) (*SearchResponse, error) {
	must := []interface{}{
		map[string]interface{}{
			"range": map[string]interface{}{
				"anomaly_grade": map[string]interface{}{"gt": minGrade},
			},
		},
	}
	if detectorID != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"detector_id": detectorID},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"size": 500,
		"sort": []interface{}{
			map[string]interface{}{"execution_start_time": map[string]interface{}{"order": "desc"}},
		},
	}
	return c.Search(ctx, "_plugins/_anomaly_detection/detectors/results/_search", query)
}

// Detectors lists the configured anomaly detectors.
func (c *Client) Detectors(ctx context.Context) (*SearchResponse, error) {
	query := map[string]interface{}{
		"size": 100,
	}
	return c.Search(ctx, "_plugins/_anomaly_detection/detectors/_search", query)
}

// Ping verifies indexer connectivity with a zero-size query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.searchIndex(ctx, map[string]interface{}{"size": 0})
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
