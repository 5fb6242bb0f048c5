package wazuh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"argus/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	viper.Reset()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	cfg.Wazuh.Host = u.Hostname()
	port, _ := strconv.Atoi(u.Port())
	cfg.Wazuh.Port = port

	client := NewClient(cfg, zap.NewNop().Sugar())
	// httptest serves plain HTTP
	client.baseURL = server.URL
	return client, server
}

func TestSearchDecodesEnvelope(t *testing.T) {
	var gotAuth bool
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _, gotAuth = r.BasicAuth()
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_search"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{
				"total": map[string]interface{}{"value": 2},
				"hits": []map[string]interface{}{
					{"_id": "a1", "_source": map[string]interface{}{"rule": map[string]interface{}{"level": 7}}},
					{"_id": "a2", "_source": map[string]interface{}{"rule": map[string]interface{}{"level": 3}}},
				},
			},
		})
	})

	resp, err := client.TodaysAlerts(context.Background())
	require.NoError(t, err)
	assert.True(t, gotAuth, "requests carry basic auth")
	assert.Equal(t, 2, resp.Hits.Total.Value)
	require.Len(t, resp.Hits.Hits, 2)
	assert.Equal(t, "a1", resp.Hits.Hits[0].ID)
}

func TestSearchCachesIdenticalQueries(t *testing.T) {
	calls := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"total": map[string]interface{}{"value": 0}, "hits": []interface{}{}},
		})
	})

	ctx := context.Background()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	_, err := client.AlertsByTimeRange(ctx, start, end)
	require.NoError(t, err)
	_, err = client.AlertsByTimeRange(ctx, start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second identical query must be served from cache")
}

func TestSearchErrorStatus(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"index_not_found_exception"}`, http.StatusNotFound)
	})

	_, err := client.SeveritySummary(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFIMEventsQueryShape(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var query map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))

		// The syscheck term filter is what distinguishes FIM traffic
		// from the general alert query.
		raw, _ := json.Marshal(query)
		assert.Contains(t, string(raw), "syscheck")
		assert.Contains(t, string(raw), "@timestamp")

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"total": map[string]interface{}{"value": 0}, "hits": []interface{}{}},
		})
	})

	end := time.Now()
	_, err := client.FIMEvents(context.Background(), end.Add(-24*time.Hour), end)
	require.NoError(t, err)
}

func TestAnomalyResultsEndpoint(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "_plugins/_anomaly_detection")
		var query map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		raw, _ := json.Marshal(query)
		assert.Contains(t, string(raw), "anomaly_grade")
		assert.Contains(t, string(raw), "detector-7")

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"total": map[string]interface{}{"value": 0}, "hits": []interface{}{}},
		})
	})

	_, err := client.AnomalyResults(context.Background(), "detector-7", 0.1)
	require.NoError(t, err)
}
