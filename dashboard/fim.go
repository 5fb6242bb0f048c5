package dashboard

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"argus/config"
	"argus/core"
	"argus/notify"
	"argus/wazuh"

	"go.uber.org/zap"
)

// fimWindow is how far back the FIM dashboard looks on each refresh.
const fimWindow = 24 * time.Hour

// Paths whose modification is always critical, regardless of rule level.
var fimCriticalPaths = []string{
	"/etc/passwd", "/etc/shadow", "/etc/sudoers",
	`hkey_local_machine\sam`, `hkey_local_machine\security`,
	`hkey_local_machine\system`, `hkey_local_machine\software`,
}

// System locations that elevate a change to high severity.
var fimSystemPaths = []string{
	"/etc/", "/bin/", "/sbin/", "/usr/bin/", "/usr/sbin/",
	`hkey_local_machine\system`, `hkey_local_machine\windows`,
}

// NewFIM builds the file-integrity-monitoring dashboard.
func NewFIM(client *wazuh.Client, cfg *config.Config, notifier *notify.Center, logger *zap.SugaredLogger) *Dashboard {
	engine := core.NewEngine(core.EngineConfig{
		PageSize:       cfg.Dashboards.PageSizes.FIM,
		TimestampField: "timestamp",
		NumericPolicy:  numericPolicy(cfg),
	})

	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		end := time.Now()
		resp, err := client.FIMEvents(ctx, end.Add(-fimWindow), end)
		if err != nil {
			return nil, nil, err
		}
		records := processFIMHits(resp.Hits.Hits)
		return records, fimSummary(records), nil
	}

	return New("fim", engine, fetch, notifier, logger)
}

func processFIMHits(hits []wazuh.Hit) []core.Record {
	records := make([]core.Record, 0, len(hits))
	for _, hit := range hits {
		records = append(records, processFIMHit(hit))
	}
	return records
}

func processFIMHit(hit wazuh.Hit) core.Record {
	source := hit.Source
	syscheck := subMap(source, "syscheck")
	rule := subMap(source, "rule")
	agent := subMap(source, "agent")

	filePath := str(syscheck, "path")
	fileHash := str(syscheck, "sha256_after")
	if fileHash == "" {
		fileHash = strOr(syscheck, "md5_after", "N/A")
	}

	record := core.Record{
		"id":                 hit.ID,
		"timestamp":          str(source, "@timestamp"),
		"agent_name":         strOr(agent, "name", "Unknown"),
		"agent_ip":           strOr(agent, "ip", "N/A"),
		"os_name":            strOr(subMap(agent, "os"), "name", "N/A"),
		"filename":           extractFilename(filePath),
		"file_path":          filePath,
		"change_type":        determineChangeType(syscheck, rule),
		"user":               strOr(syscheck, "uname_after", "Unknown"),
		"severity":           fimSeverity(filePath, num(rule, "level")),
		"file_size":          strOr(syscheck, "size", "N/A"),
		"file_hash":          fileHash,
		"process_name":       "syscheck",
		"rule_id":            str(rule, "id"),
		"rule_description":   str(rule, "description"),
		"changed_attributes": strSlice(syscheck, "changed_attributes"),
		"registry_path":      strings.Contains(filePath, "HKEY"),
	}

	if perms := syscheck["win_perm_after"]; perms != nil {
		record["windows_permissions"] = perms
	}
	if before := str(syscheck, "perm_before"); before != "" {
		record["old_permissions"] = before
		record["new_permissions"] = strOr(syscheck, "perm_after", "N/A")
	}

	return record
}

// extractFilename returns the last path segment, handling both filesystem
// and Windows registry paths.
func extractFilename(filePath string) string {
	if filePath == "" {
		return "unknown"
	}
	if strings.HasPrefix(filePath, "HKEY_") {
		if idx := strings.LastIndex(filePath, `\`); idx >= 0 {
			return filePath[idx+1:]
		}
		return filePath
	}
	return path.Base(filePath)
}

// determineChangeType classifies a syscheck event, preferring the concrete
// changed_attributes list over the rule description's wording.
func determineChangeType(syscheck, rule map[string]interface{}) string {
	attrs := strSlice(syscheck, "changed_attributes")
	for _, attr := range attrs {
		switch attr {
		case "perm":
			return "permission"
		case "uid", "gid":
			return "ownership"
		case "mtime", "ctime", "size":
			return "modified"
		}
	}

	description := strings.ToLower(str(rule, "description"))
	switch {
	case strings.Contains(description, "added"), strings.Contains(description, "created"):
		return "created"
	case strings.Contains(description, "modified"), strings.Contains(description, "changed"):
		return "modified"
	case strings.Contains(description, "deleted"), strings.Contains(description, "removed"):
		return "deleted"
	}

	return "modified"
}

// fimSeverity rates a change by the sensitivity of the touched path first
// and the rule level second.
func fimSeverity(filePath string, ruleLevel float64) string {
	lowered := strings.ToLower(filePath)

	for _, critical := range fimCriticalPaths {
		if strings.Contains(lowered, critical) {
			return "critical"
		}
	}
	for _, system := range fimSystemPaths {
		if strings.Contains(lowered, system) {
			return "high"
		}
	}

	switch {
	case ruleLevel >= 10:
		return "high"
	case ruleLevel >= 7:
		return "medium"
	default:
		return "low"
	}
}

// fimSummary computes the headline FIM metrics, including the integrity
// score (100 minus two points per critical change, floored at 0).
func fimSummary(records []core.Record) Summary {
	files := make(map[string]struct{})
	agents := make(map[string]struct{})
	suspicious := 0
	critical := 0

	for _, r := range records {
		files[core.CoerceString(r["file_path"])] = struct{}{}
		agents[core.CoerceString(r["agent_name"])] = struct{}{}

		switch core.CoerceString(r["severity"]) {
		case "critical":
			critical++
			suspicious++
		case "high":
			suspicious++
		}
	}

	score := 100 - critical*2
	if score < 0 {
		score = 0
	}

	return Summary{
		"total_files":        len(files),
		"total_changes":      len(records),
		"suspicious_changes": suspicious,
		"monitored_agents":   len(agents),
		"integrity_score":    fmt.Sprintf("%d%%", score),
	}
}
