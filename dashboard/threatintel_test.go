package dashboard

import (
	"testing"

	"argus/misp"
	"argus/wazuh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threatHit(id string, level float64, iocValue, iocType string) wazuh.Hit {
	return wazuh.Hit{
		ID: id,
		Source: map[string]interface{}{
			"timestamp": "2024-06-01T10:00:00Z",
			"rule": map[string]interface{}{
				"id":          "100002",
				"level":       level,
				"description": "MISP - IoC found in Threat Sharing platform",
			},
			"agent": map[string]interface{}{"name": "edge-01", "ip": "10.0.0.2"},
			"data": map[string]interface{}{
				"misp": map[string]interface{}{
					"event_id": "4521",
					"value":    iocValue,
					"type":     iocType,
					"category": "Network activity",
				},
			},
		},
	}
}

func TestProcessThreatHit(t *testing.T) {
	r, ok := processThreatHit(threatHit("t1", 12, "198.51.100.7", "ip-dst"))

	require.True(t, ok)
	assert.Equal(t, "t1", r["id"])
	assert.Equal(t, "198.51.100.7", r["ioc_value"])
	assert.Equal(t, "ip-dst", r["ioc_type"])
	assert.Equal(t, "4521", r["event_id"])
	assert.Equal(t, "edge-01", r["agent_name"])
	assert.Equal(t, "Network activity", r["category"])
}

func TestProcessThreatHitSkipsUnusable(t *testing.T) {
	tests := []struct {
		name string
		hit  wazuh.Hit
	}{
		{"no misp data", wazuh.Hit{Source: map[string]interface{}{"rule": map[string]interface{}{"level": float64(7)}}}},
		{"missing ioc value", threatHit("x", 7, "", "ip-dst")},
		{"missing ioc type", threatHit("x", 7, "198.51.100.7", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := processThreatHit(tt.hit)
			assert.False(t, ok)
		})
	}
}

func TestThreatSummary(t *testing.T) {
	records := processThreatHits([]wazuh.Hit{
		threatHit("1", 12, "198.51.100.7", "ip-dst"),
		threatHit("2", 10, "evil.example.com", "domain"),
		threatHit("3", 7, "198.51.100.7", "ip-dst"),
	})

	s := threatSummary(records)

	assert.Equal(t, 3, s["total_alerts"])
	assert.Equal(t, 1, s["critical_alerts"])
	assert.Equal(t, 1, s["high_alerts"])
	assert.Equal(t, 1, s["medium_alerts"])
	assert.Equal(t, 2, s["unique_iocs"])
	assert.Equal(t, 1, s["affected_agents"])

	iocTypes, ok := s["ioc_types"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 2, iocTypes["ip-dst"])
	assert.Equal(t, 1, iocTypes["domain"])
}

func TestFeedsSummary(t *testing.T) {
	events := []misp.Event{
		{ThreatLevelID: "1", Analysis: "2", AttributeCount: 12, Tags: []string{"tlp:red", "apt"}},
		{ThreatLevelID: "3", Analysis: "0", AttributeCount: 3, Tags: []string{"tlp:red"}},
	}

	s := feedsSummary(events)

	assert.Equal(t, 2, s["total_events"])
	assert.Equal(t, 15, s["total_attributes"])
	assert.Equal(t, 2, s["unique_tags"])

	levels, ok := s["threat_levels"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 1, levels["1"])
	assert.Equal(t, 1, levels["3"])
	assert.Equal(t, 0, levels["2"])
}
