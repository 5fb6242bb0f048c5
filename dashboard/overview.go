package dashboard

import (
	"context"
	"sort"
	"time"

	"argus/config"
	"argus/core"
	"argus/notify"
	"argus/wazuh"

	"go.uber.org/zap"
)

// ThreatIndicator is one high-severity alert surfaced on the overview
// banner.
type ThreatIndicator struct {
	Timestamp    string   `json:"timestamp"`
	Severity     float64  `json:"severity"`
	Description  string   `json:"description"`
	Agent        string   `json:"agent"`
	MitreTactics []string `json:"mitre_tactics"`
}

const (
	highSeverityLevel     = 10
	criticalSeverityLevel = 12
	maxThreatIndicators   = 20
)

// NewOverview builds the main SOC alert dashboard.
func NewOverview(client *wazuh.Client, cfg *config.Config, notifier *notify.Center, logger *zap.SugaredLogger) *Dashboard {
	engine := core.NewEngine(core.EngineConfig{
		PageSize:       cfg.Dashboards.PageSizes.Alerts,
		TimestampField: "timestamp",
		NumericPolicy:  numericPolicy(cfg),
	})

	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		resp, err := client.TodaysAlerts(ctx)
		if err != nil {
			return nil, nil, err
		}
		records := processAlertHits(resp.Hits.Hits)
		return records, overviewSummary(resp, records), nil
	}

	return New("overview", engine, fetch, notifier, logger)
}

// processAlertHits flattens alert documents into records. The convenience
// fields mirror what the tables render; the nested rule/agent maps stay in
// place so dot-path filters like "agent.name" keep working.
func processAlertHits(hits []wazuh.Hit) []core.Record {
	records := make([]core.Record, 0, len(hits))
	for _, hit := range hits {
		records = append(records, processAlertHit(hit))
	}
	return records
}

func processAlertHit(hit wazuh.Hit) core.Record {
	source := hit.Source
	rule := subMap(source, "rule")
	agent := subMap(source, "agent")
	mitre := subMap(rule, "mitre")

	firedTimes := num(rule, "firedtimes")
	if firedTimes == 0 {
		firedTimes = 1
	}

	return core.Record{
		"id":               hit.ID,
		"timestamp":        str(source, "@timestamp"),
		"severity":         num(rule, "level"),
		"rule_id":          str(rule, "id"),
		"rule_description": str(rule, "description"),
		"agent_name":       strOr(agent, "name", "Unknown"),
		"agent_ip":         str(agent, "ip"),
		"agent_id":         str(agent, "id"),
		"manager":          str(subMap(source, "manager"), "name"),
		"location":         str(source, "location"),
		"groups":           strSlice(rule, "groups"),
		"fired_times":      firedTimes,
		"mitre_tactics":    strSlice(mitre, "tactic"),
		"mitre_techniques": strSlice(mitre, "technique"),
		"mitre_ids":        strSlice(mitre, "id"),
		"full_log":         str(source, "full_log"),
		"compliance": map[string]interface{}{
			"pci_dss":     strSlice(rule, "pci_dss"),
			"hipaa":       strSlice(rule, "hipaa"),
			"nist_800_53": strSlice(rule, "nist_800_53"),
			"gdpr":        strSlice(rule, "gdpr"),
			"gpg13":       strSlice(rule, "gpg13"),
		},
		"rule":  rule,
		"agent": agent,
	}
}

// overviewSummary computes the headline metrics plus the chart series and
// threat indicators the overview page renders alongside the table.
func overviewSummary(resp *wazuh.SearchResponse, records []core.Record) Summary {
	agents := make(map[string]struct{})
	highSeverity := 0
	critical := 0
	indicators := make([]ThreatIndicator, 0)
	techniques := make(map[string]struct{})

	for _, r := range records {
		severity, _ := core.CoerceFloat(r["severity"])
		if severity >= highSeverityLevel {
			highSeverity++
		}
		if severity >= criticalSeverityLevel {
			critical++
		}
		agents[core.CoerceString(r["agent_name"])] = struct{}{}

		tactics, _ := r["mitre_tactics"].([]string)
		if severity >= highSeverityLevel {
			indicators = append(indicators, ThreatIndicator{
				Timestamp:    core.CoerceString(r["timestamp"]),
				Severity:     severity,
				Description:  core.CoerceString(r["rule_description"]),
				Agent:        core.CoerceString(r["agent_name"]),
				MitreTactics: tactics,
			})
			for _, tech := range tactics {
				techniques[tech] = struct{}{}
			}
		}
	}

	sort.SliceStable(indicators, func(i, j int) bool {
		return indicators[i].Severity > indicators[j].Severity
	})
	if len(indicators) > maxThreatIndicators {
		indicators = indicators[:maxThreatIndicators]
	}

	return Summary{
		"total_alerts":           resp.Hits.Total.Value,
		"high_severity_alerts":   highSeverity,
		"critical_alerts":        critical,
		"unique_agents":          len(agents),
		"active_threats":         len(indicators),
		"mitre_techniques_count": len(techniques),
		"charts":                 BuildCharts(records),
		"threat_indicators":      indicators,
		"data_freshness":         time.Now().UTC().Format(time.RFC3339),
	}
}

func numericPolicy(cfg *config.Config) core.NumericPolicy {
	if cfg.Dashboards.StrictNumericFilters {
		return core.NumericStrict
	}
	return core.NumericLenient
}
