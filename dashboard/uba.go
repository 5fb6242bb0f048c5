package dashboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"argus/config"
	"argus/core"
	"argus/notify"
	"argus/wazuh"

	"go.uber.org/zap"
)

// defaultMinAnomalyGrade filters out the detector noise floor.
const defaultMinAnomalyGrade = 0.1

// RiskIndicator is one high-risk anomaly surfaced on the UBA banner.
type RiskIndicator struct {
	DetectorID   string   `json:"detector_id"`
	AnomalyGrade float64  `json:"anomaly_grade"`
	Confidence   float64  `json:"confidence"`
	Timestamp    string   `json:"timestamp"`
	TopFeatures  []string `json:"top_features"`
	RiskLevel    string   `json:"risk_level"`
}

// NewUBA builds the user-behavior-analytics dashboard over the anomaly
// detection plugin's results index.
func NewUBA(client *wazuh.Client, cfg *config.Config, notifier *notify.Center, logger *zap.SugaredLogger) *Dashboard {
	engine := core.NewEngine(core.EngineConfig{
		PageSize:       cfg.Dashboards.PageSizes.UBA,
		TimestampField: "timestamp",
		NumericPolicy:  numericPolicy(cfg),
	})

	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		resp, err := client.AnomalyResults(ctx, "", defaultMinAnomalyGrade)
		if err != nil {
			return nil, nil, err
		}
		records := processAnomalyHits(resp.Hits.Hits)
		return records, ubaSummary(records), nil
	}

	return New("uba", engine, fetch, notifier, logger)
}

func processAnomalyHits(hits []wazuh.Hit) []core.Record {
	records := make([]core.Record, 0, len(hits))
	for _, hit := range hits {
		records = append(records, processAnomalyHit(hit))
	}
	return records
}

func processAnomalyHit(hit wazuh.Hit) core.Record {
	source := hit.Source

	featureData := make(map[string]float64)
	featureOrder := make([]string, 0)
	if features, ok := source["feature_data"].([]interface{}); ok {
		for _, raw := range features {
			feature, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			name := strOr(feature, "feature_name", "unknown")
			featureData[name] = num(feature, "data")
			featureOrder = append(featureOrder, name)
		}
	}

	attribution := make([]map[string]interface{}, 0)
	if attrs, ok := source["relevant_attribution"].([]interface{}); ok {
		for _, raw := range attrs {
			attr, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			attribution = append(attribution, map[string]interface{}{
				"feature_id": str(attr, "feature_id"),
				"data":       num(attr, "data"),
			})
		}
	}

	execStart := num(source, "execution_start_time")

	threshold := num(source, "threshold")
	if threshold == 0 {
		threshold = 0.8
	}

	return core.Record{
		"id":                   hit.ID,
		"timestamp":            epochMillisToRFC3339(execStart),
		"detector_id":          str(source, "detector_id"),
		"anomaly_grade":        num(source, "anomaly_grade"),
		"anomaly_score":        num(source, "anomaly_score"),
		"confidence":           num(source, "confidence"),
		"execution_start_time": execStart,
		"data_start_time":      num(source, "data_start_time"),
		"data_end_time":        num(source, "data_end_time"),
		"feature_data":         featureData,
		"feature_names":        featureOrder,
		"relevant_attribution": attribution,
		"expected_values":      source["expected_values"],
		"user":                 subMap(source, "user"),
		"threshold":            threshold,
		"model_id":             str(source, "model_id"),
	}
}

func epochMillisToRFC3339(millis float64) string {
	if millis <= 0 {
		return ""
	}
	return time.UnixMilli(int64(millis)).UTC().Format(time.RFC3339)
}

func ubaSummary(records []core.Record) Summary {
	detectors := make(map[string]int)
	featureAttribution := make(map[string]float64)
	timeline := make(map[string]int)
	grades := make([]float64, 0, len(records))
	confidences := make([]float64, 0, len(records))

	highConfidence := 0
	highGrade := 0
	var gradeSum, confidenceSum float64

	for _, r := range records {
		grade, _ := core.CoerceFloat(r["anomaly_grade"])
		confidence, _ := core.CoerceFloat(r["confidence"])
		grades = append(grades, grade)
		confidences = append(confidences, confidence)
		gradeSum += grade
		confidenceSum += confidence
		if confidence > 0.7 {
			highConfidence++
		}
		if grade > 0.5 {
			highGrade++
		}

		detectors[core.CoerceString(r["detector_id"])]++

		if attrs, ok := r["relevant_attribution"].([]map[string]interface{}); ok {
			for _, attr := range attrs {
				id := core.CoerceString(attr["feature_id"])
				value, _ := core.CoerceFloat(attr["data"])
				featureAttribution[id] += value
			}
		}

		if ts := core.CoerceString(r["timestamp"]); len(ts) >= 10 {
			timeline[ts[:10]]++
		}
	}

	avgGrade, avgConfidence := 0.0, 0.0
	if len(records) > 0 {
		avgGrade = round3(gradeSum / float64(len(records)))
		avgConfidence = round3(confidenceSum / float64(len(records)))
	}

	return Summary{
		"total_anomalies":           len(records),
		"high_confidence_anomalies": highConfidence,
		"high_grade_anomalies":      highGrade,
		"active_detectors":          len(detectors),
		"avg_anomaly_grade":         avgGrade,
		"avg_confidence":            avgConfidence,
		"time_range":                "Last Update: " + time.Now().UTC().Format("2006-01-02 15:04:05"),
		"data_freshness":            time.Now().UTC().Format(time.RFC3339),
		"charts": Summary{
			"anomaly_timeline":      timeline,
			"detector_distribution": detectors,
			"feature_attribution":   topFeatures(featureAttribution, 10),
			"anomaly_grades":        grades,
			"confidence_levels":     confidences,
		},
		"risk_indicators": extractRiskIndicators(records),
	}
}

// extractRiskIndicators keeps anomalies with grade above 0.7 or confidence
// above 0.8, highest grade first, at most ten.
func extractRiskIndicators(records []core.Record) []RiskIndicator {
	indicators := make([]RiskIndicator, 0)
	for _, r := range records {
		grade, _ := core.CoerceFloat(r["anomaly_grade"])
		confidence, _ := core.CoerceFloat(r["confidence"])
		if grade <= 0.7 && confidence <= 0.8 {
			continue
		}

		features, _ := r["feature_names"].([]string)
		if len(features) > 3 {
			features = features[:3]
		}

		level := "MEDIUM"
		if grade > 0.8 {
			level = "HIGH"
		}

		indicators = append(indicators, RiskIndicator{
			DetectorID:   core.CoerceString(r["detector_id"]),
			AnomalyGrade: grade,
			Confidence:   confidence,
			Timestamp:    core.CoerceString(r["timestamp"]),
			TopFeatures:  features,
			RiskLevel:    level,
		})
	}

	sort.SliceStable(indicators, func(i, j int) bool {
		return indicators[i].AnomalyGrade > indicators[j].AnomalyGrade
	})
	if len(indicators) > 10 {
		indicators = indicators[:10]
	}
	return indicators
}

// ProcessDetectors flattens a detector search response for the detector
// listing endpoint.
func ProcessDetectors(resp *wazuh.SearchResponse) []map[string]interface{} {
	detectors := make([]map[string]interface{}, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		source := hit.Source
		period := subMap(subMap(source, "detection_interval"), "period")
		detectors = append(detectors, map[string]interface{}{
			"id":          hit.ID,
			"name":        str(source, "name"),
			"description": str(source, "description"),
			"indices":     strSlice(source, "indices"),
			"enabled":     source["enabled"],
			"detection_interval": fmt.Sprintf("%v %s",
				num(period, "interval"), strOr(period, "unit", "Minutes")),
		})
	}
	return detectors
}

func topFeatures(attribution map[string]float64, n int) map[string]float64 {
	if len(attribution) <= n {
		return attribution
	}
	type entry struct {
		key   string
		value float64
	}
	entries := make([]entry, 0, len(attribution))
	for k, v := range attribution {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value > entries[j].value
		}
		return entries[i].key < entries[j].key
	})
	out := make(map[string]float64, n)
	for _, e := range entries[:n] {
		out[e.key] = e.value
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
