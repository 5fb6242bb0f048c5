package dashboard

import (
	"sort"

	"argus/core"
)

// Charts is the series bundle the overview page charts are drawn from.
type Charts struct {
	SeverityDistribution map[int]int    `json:"severity_distribution"`
	TopAgents            map[string]int `json:"top_agents"`
	MitreTactics         map[string]int `json:"mitre_tactics"`
	Timeline             map[string]int `json:"timeline"`
}

const (
	maxSeverityLevel = 15
	topAgentsLimit   = 10
	topTacticsLimit  = 15
)

// BuildCharts derives the chart series from an alert record set. Severity
// buckets 1..15 are always present so the distribution chart renders a
// fixed axis even with no data.
func BuildCharts(records []core.Record) Charts {
	charts := Charts{
		SeverityDistribution: make(map[int]int, maxSeverityLevel),
		TopAgents:            make(map[string]int),
		MitreTactics:         make(map[string]int),
		Timeline:             make(map[string]int),
	}
	for level := 1; level <= maxSeverityLevel; level++ {
		charts.SeverityDistribution[level] = 0
	}

	agents := make(map[string]int)
	tactics := make(map[string]int)

	for _, r := range records {
		severity, _ := core.CoerceFloat(r["severity"])
		if level := int(severity); level >= 1 && level <= maxSeverityLevel {
			charts.SeverityDistribution[level]++
		}

		if agent := core.CoerceString(r["agent_name"]); agent != "" {
			agents[agent]++
		}

		if list, ok := r["mitre_tactics"].([]string); ok {
			for _, tactic := range list {
				tactics[tactic]++
			}
		}

		// Group by hour: the timestamp prefix through "YYYY-MM-DDTHH"
		if ts := core.CoerceString(r["timestamp"]); len(ts) >= 13 {
			charts.Timeline[ts[:13]]++
		}
	}

	charts.TopAgents = topN(agents, topAgentsLimit)
	charts.MitreTactics = topN(tactics, topTacticsLimit)
	return charts
}

// topN keeps the n highest-count entries.
func topN(counts map[string]int, n int) map[string]int {
	if len(counts) <= n {
		return counts
	}

	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})

	out := make(map[string]int, n)
	for _, e := range entries[:n] {
		out[e.key] = e.count
	}
	return out
}
