package dashboard

import (
	"context"
	"time"

	"argus/config"
	"argus/core"
	"argus/misp"
	"argus/notify"
	"argus/wazuh"

	"go.uber.org/zap"
)

// threatWindow is the alert lookback for IOC matches.
const threatWindow = 24 * time.Hour

// NewThreatIntel builds the threat-intelligence dashboard. The engine holds
// Wazuh alerts that matched a MISP IOC; the feed panel data rides along in
// the summary since MISP events are not tabular records.
func NewThreatIntel(wz *wazuh.Client, feeds *misp.Client, cfg *config.Config, notifier *notify.Center, logger *zap.SugaredLogger) *Dashboard {
	engine := core.NewEngine(core.EngineConfig{
		PageSize:       cfg.Dashboards.PageSizes.ThreatIntel,
		TimestampField: "timestamp",
		NumericPolicy:  numericPolicy(cfg),
	})

	feedLimit := cfg.MISP.FeedLimit

	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		end := time.Now()
		resp, err := wz.ThreatAlerts(ctx, end.Add(-threatWindow), end)
		if err != nil {
			return nil, nil, err
		}
		records := processThreatHits(resp.Hits.Hits)
		summary := threatSummary(records)

		// The feed panel degrades independently: a MISP outage should not
		// blank the IOC match table.
		if feeds != nil && cfg.MISP.Enabled {
			events, feedErr := feeds.RecentEvents(ctx, feedLimit)
			if feedErr != nil {
				logger.Warnw("MISP feed fetch failed", "error", feedErr)
				notifier.Notify(notify.SeverityWarning, "threat_intel", "feed fetch failed: %v", feedErr)
				summary["feeds"] = Summary{"events": []misp.Event{}, "summary": emptyFeedsSummary()}
			} else {
				summary["feeds"] = Summary{"events": events, "summary": feedsSummary(events)}
			}
		}

		return records, summary, nil
	}

	return New("threat_intel", engine, fetch, notifier, logger)
}

// processThreatHits keeps only hits that carry usable MISP enrichment.
// Error alerts from the integration itself and hits missing the IOC value
// or type are dropped rather than rendered as blank rows.
func processThreatHits(hits []wazuh.Hit) []core.Record {
	records := make([]core.Record, 0, len(hits))
	for _, hit := range hits {
		if r, ok := processThreatHit(hit); ok {
			records = append(records, r)
		}
	}
	return records
}

func processThreatHit(hit wazuh.Hit) (core.Record, bool) {
	source := hit.Source
	rule := subMap(source, "rule")
	agent := subMap(source, "agent")
	mispData := subMap(subMap(source, "data"), "misp")

	if mispData == nil {
		return nil, false
	}

	iocValue := str(mispData, "value")
	iocType := str(mispData, "type")
	if iocValue == "" || iocType == "" {
		return nil, false
	}

	timestamp := str(source, "timestamp")
	if timestamp == "" {
		timestamp = str(source, "@timestamp")
	}
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	return core.Record{
		"id":                 hit.ID,
		"timestamp":          timestamp,
		"severity":           num(rule, "level"),
		"agent_name":         strOr(agent, "name", "Unknown"),
		"agent_ip":           strOr(agent, "ip", "Unknown"),
		"agent_id":           str(agent, "id"),
		"rule_id":            str(rule, "id"),
		"rule_description":   strOr(rule, "description", "MISP IoC Match"),
		"ioc_value":          iocValue,
		"ioc_type":           iocType,
		"category":           strOr(mispData, "category", "Network activity"),
		"event_id":           str(mispData, "event_id"),
		"source_description": strOr(subMap(mispData, "source"), "description", "MISP"),
		"location":           str(source, "location"),
		"manager":            str(subMap(source, "manager"), "name"),
		"data":               source,
	}, true
}

func threatSummary(records []core.Record) Summary {
	critical, high, medium := 0, 0, 0
	iocTypes := make(map[string]int)
	categories := make(map[string]int)
	iocs := make(map[string]struct{})
	agents := make(map[string]struct{})

	for _, r := range records {
		severity, _ := core.CoerceFloat(r["severity"])
		switch {
		case severity >= 12:
			critical++
		case severity >= 10:
			high++
		case severity >= 7:
			medium++
		}

		iocTypes[core.CoerceString(r["ioc_type"])]++
		categories[core.CoerceString(r["category"])]++
		iocs[core.CoerceString(r["ioc_value"])] = struct{}{}
		agents[core.CoerceString(r["agent_name"])] = struct{}{}
	}

	return Summary{
		"total_alerts":    len(records),
		"critical_alerts": critical,
		"high_alerts":     high,
		"medium_alerts":   medium,
		"unique_iocs":     len(iocs),
		"affected_agents": len(agents),
		"ioc_types":       iocTypes,
		"categories":      categories,
		"time_range":      "Last update: " + time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
}

// feedsSummary aggregates the MISP feed panel counters. Threat levels run
// 1 (high) through 4 (undefined); analysis status 0 (initial) through 2
// (complete). All buckets are pre-seeded so the panel renders zeros.
func feedsSummary(events []misp.Event) Summary {
	totalAttributes := 0
	tags := make(map[string]struct{})
	threatLevels := map[string]int{"1": 0, "2": 0, "3": 0, "4": 0}
	analysisStatus := map[string]int{"0": 0, "1": 0, "2": 0}

	for _, e := range events {
		totalAttributes += e.AttributeCount
		for _, t := range e.Tags {
			tags[t] = struct{}{}
		}
		threatLevels[e.ThreatLevelID]++
		analysisStatus[e.Analysis]++
	}

	return Summary{
		"total_events":     len(events),
		"total_attributes": totalAttributes,
		"unique_tags":      len(tags),
		"last_7_days":      len(events),
		"threat_levels":    threatLevels,
		"analysis_status":  analysisStatus,
		"last_updated":     time.Now().UTC().Format(time.RFC3339),
	}
}

func emptyFeedsSummary() Summary {
	return Summary{
		"total_events":     0,
		"total_attributes": 0,
		"unique_tags":      0,
		"last_7_days":      0,
		"threat_levels":    map[string]int{"1": 0, "2": 0, "3": 0, "4": 0},
		"analysis_status":  map[string]int{"0": 0, "1": 0, "2": 0},
		"last_updated":     time.Now().UTC().Format(time.RFC3339),
	}
}
