package dashboard

import (
	"context"
	"sort"
	"strings"
	"time"

	"argus/config"
	"argus/core"
	"argus/iris"
	"argus/notify"

	"go.uber.org/zap"
)

// IRIS deployments rename case fields across versions, so each attribute is
// read through a fallback chain.
var (
	caseStatusFields   = []string{"status", "case_status", "state"}
	caseSeverityFields = []string{"severity", "case_severity"}
	caseAnalystFields  = []string{"user_name", "assigned_to", "owner"}
	caseCreatedFields  = []string{"created_at", "case_open_date", "date_created"}
	caseNameFields     = []string{"name", "case_name", "title"}
	caseIDFields       = []string{"case_id", "id"}
)

// NewCases builds the case-management dashboard over the IRIS case API.
func NewCases(client *iris.Client, cfg *config.Config, notifier *notify.Center, logger *zap.SugaredLogger) *Dashboard {
	engine := core.NewEngine(core.EngineConfig{
		PageSize:       cfg.Dashboards.PageSizes.Cases,
		TimestampField: "created_at",
		NumericPolicy:  numericPolicy(cfg),
	})

	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		resp, err := client.AllCases(ctx)
		if err != nil {
			return nil, nil, err
		}
		records := processCases(iris.ExtractCases(resp))
		return records, casesSummary(records), nil
	}

	return New("cases", engine, fetch, notifier, logger)
}

func processCases(raw []map[string]interface{}) []core.Record {
	records := make([]core.Record, 0, len(raw))
	for _, c := range raw {
		records = append(records, processCase(c))
	}
	return records
}

func processCase(c map[string]interface{}) core.Record {
	record := core.Record{
		"id":         firstString(c, caseIDFields, ""),
		"name":       firstString(c, caseNameFields, "Untitled"),
		"status":     firstString(c, caseStatusFields, "Unknown"),
		"severity":   firstString(c, caseSeverityFields, "Unknown"),
		"analyst":    firstString(c, caseAnalystFields, "Unassigned"),
		"created_at": firstString(c, caseCreatedFields, ""),
		"client":     str(subMap(c, "client"), "client_name"),
	}
	if record["client"] == "" {
		record["client"] = strOr(c, "client_name", "N/A")
	}
	if desc := str(c, "case_description"); desc != "" {
		record["description"] = desc
	}
	// Keep the raw document so dot-path filters can reach renamed fields.
	record["data"] = c
	return record
}

// firstString returns the first non-empty field from a fallback chain,
// coercing numeric identifiers to strings.
func firstString(m map[string]interface{}, keys []string, fallback string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := core.CoerceString(v); s != "" {
				return s
			}
		}
	}
	return fallback
}

// caseSeverityLevel maps the severity label to an ordinal, 4 highest.
func caseSeverityLevel(severity string) int {
	lowered := strings.ToLower(severity)
	switch {
	case strings.Contains(lowered, "critical"), severity == "4":
		return 4
	case strings.Contains(lowered, "high"), severity == "3":
		return 3
	case strings.Contains(lowered, "medium"), severity == "2":
		return 2
	default:
		return 1
	}
}

func caseIsOpen(status string) bool {
	switch strings.ToLower(status) {
	case "open", "investigating", "active":
		return true
	}
	return false
}

func caseIsClosed(status string) bool {
	switch strings.ToLower(status) {
	case "closed", "resolved", "completed":
		return true
	}
	return false
}

// caseAge buckets an open case by how long it has been sitting.
func caseAge(createdAt string, now time.Time) string {
	ts, ok := core.CoerceTime(createdAt)
	if !ok {
		return "unknown"
	}
	switch age := now.Sub(ts); {
	case age < 24*time.Hour:
		return "under_24h"
	case age < 7*24*time.Hour:
		return "1_to_7d"
	default:
		return "over_7d"
	}
}

func casesSummary(records []core.Record) Summary {
	statusCounts := make(map[string]int)
	severityCounts := make(map[string]int)
	workload := make(map[string]int)
	aging := map[string]int{"under_24h": 0, "1_to_7d": 0, "over_7d": 0}
	open, closed, escalated := 0, 0, 0
	now := time.Now().UTC()

	for _, r := range records {
		status := core.CoerceString(r["status"])
		severity := core.CoerceString(r["severity"])

		statusCounts[status]++
		severityCounts[severity]++
		workload[core.CoerceString(r["analyst"])]++

		if caseIsOpen(status) {
			open++
			aging[caseAge(core.CoerceString(r["created_at"]), now)]++
		} else if caseIsClosed(status) {
			closed++
		}
		if caseSeverityLevel(severity) >= 3 {
			escalated++
		}
	}

	recent := make([]core.Record, len(records))
	copy(recent, records)
	sort.SliceStable(recent, func(i, j int) bool {
		return core.CoerceString(recent[i]["created_at"]) > core.CoerceString(recent[j]["created_at"])
	})
	if len(recent) > 10 {
		recent = recent[:10]
	}

	return Summary{
		"total_cases":           len(records),
		"open_cases":            open,
		"closed_cases":          closed,
		"active_investigations": open,
		"escalated_cases":       escalated,
		"charts": Summary{
			"status_distribution":   statusCounts,
			"severity_distribution": severityCounts,
			"analyst_workload":      topN(workload, 10),
			"open_case_aging":       aging,
		},
		"recent_cases": recent,
	}
}
