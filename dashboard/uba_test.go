package dashboard

import (
	"testing"

	"argus/wazuh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anomalyHit(id, detector string, grade, confidence float64) wazuh.Hit {
	return wazuh.Hit{
		ID: id,
		Source: map[string]interface{}{
			"detector_id":          detector,
			"anomaly_grade":        grade,
			"anomaly_score":        grade * 2,
			"confidence":           confidence,
			"execution_start_time": float64(1717236000000), // 2024-06-01T10:00:00Z
			"feature_data": []interface{}{
				map[string]interface{}{"feature_name": "logon_count", "data": float64(42)},
				map[string]interface{}{"feature_name": "bytes_out", "data": float64(9000)},
			},
			"relevant_attribution": []interface{}{
				map[string]interface{}{"feature_id": "f1", "data": 0.7},
				map[string]interface{}{"feature_id": "f2", "data": 0.3},
			},
		},
	}
}

func TestProcessAnomalyHit(t *testing.T) {
	r := processAnomalyHit(anomalyHit("a1", "det-1", 0.9, 0.95))

	assert.Equal(t, "a1", r["id"])
	assert.Equal(t, "det-1", r["detector_id"])
	assert.Equal(t, 0.9, r["anomaly_grade"])
	assert.Equal(t, 0.95, r["confidence"])
	assert.Equal(t, "2024-06-01T10:00:00Z", r["timestamp"])

	features, ok := r["feature_data"].(map[string]float64)
	require.True(t, ok)
	assert.Equal(t, float64(42), features["logon_count"])

	// Threshold defaults when absent.
	assert.Equal(t, 0.8, r["threshold"])
}

func TestUBASummary(t *testing.T) {
	records := processAnomalyHits([]wazuh.Hit{
		anomalyHit("1", "det-1", 0.9, 0.95),
		anomalyHit("2", "det-1", 0.4, 0.5),
		anomalyHit("3", "det-2", 0.6, 0.85),
	})

	s := ubaSummary(records)

	assert.Equal(t, 3, s["total_anomalies"])
	assert.Equal(t, 2, s["high_confidence_anomalies"])
	assert.Equal(t, 2, s["high_grade_anomalies"])
	assert.Equal(t, 2, s["active_detectors"])
	assert.Equal(t, 0.633, s["avg_anomaly_grade"])
	assert.Equal(t, 0.767, s["avg_confidence"])
}

func TestExtractRiskIndicators(t *testing.T) {
	records := processAnomalyHits([]wazuh.Hit{
		anomalyHit("1", "det-1", 0.9, 0.5),  // grade over 0.7
		anomalyHit("2", "det-2", 0.3, 0.85), // confidence over 0.8
		anomalyHit("3", "det-3", 0.2, 0.4),  // neither
	})

	indicators := extractRiskIndicators(records)

	require.Len(t, indicators, 2)
	// Highest grade first.
	assert.Equal(t, "det-1", indicators[0].DetectorID)
	assert.Equal(t, "HIGH", indicators[0].RiskLevel)
	assert.Equal(t, "MEDIUM", indicators[1].RiskLevel)
	assert.Equal(t, []string{"logon_count", "bytes_out"}, indicators[0].TopFeatures)
}

func TestProcessDetectors(t *testing.T) {
	resp := &wazuh.SearchResponse{Hits: wazuh.Hits{Hits: []wazuh.Hit{
		{
			ID: "det-1",
			Source: map[string]interface{}{
				"name":        "logon-anomaly",
				"description": "Unusual logon volume per user",
				"indices":     []interface{}{"wazuh-alerts-*"},
				"enabled":     true,
				"detection_interval": map[string]interface{}{
					"period": map[string]interface{}{"interval": float64(10), "unit": "Minutes"},
				},
			},
		},
	}}}

	detectors := ProcessDetectors(resp)

	require.Len(t, detectors, 1)
	assert.Equal(t, "det-1", detectors[0]["id"])
	assert.Equal(t, "logon-anomaly", detectors[0]["name"])
	assert.Equal(t, "10 Minutes", detectors[0]["detection_interval"])
}
