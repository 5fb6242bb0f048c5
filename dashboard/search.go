package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"argus/config"
	"argus/core"
	"argus/notify"
	"argus/wazuh"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// searchIndexPattern spans every Wazuh alert index generation.
const searchIndexPattern = "wazuh-alerts-*"

// SearchQuery is one advanced-search request. Either a relative time_range
// or an explicit start/end pair selects the window; start/end wins when both
// are set.
type SearchQuery struct {
	QueryString string            `json:"query" validate:"max=1024"`
	TimeRange   string            `json:"time_range" validate:"omitempty,oneof=15m 1h 24h 7d 30d"`
	StartTime   string            `json:"start_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime     string            `json:"end_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Filters     map[string]string `json:"filters" validate:"max=16,dive,max=512"`
	Size        int               `json:"size" validate:"min=0,max=1000"`
	SortField   string            `json:"sort_field" validate:"omitempty,max=128"`
	SortOrder   string            `json:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// SearchField describes one entry in the searchable-fields catalog.
type SearchField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// multiMatchFields are the fields a bare keyword search fans out across.
var multiMatchFields = []string{
	"agent.name", "agent.ip", "rule.description",
	"rule.id", "location", "full_log",
	"data.srcip", "data.srcuser", "rule.mitre.tactic",
	"syscheck.path", "data.win.eventdata.image",
}

// Search is the interactive search dashboard. Unlike the poll-driven
// modules, its record set is replaced when an operator submits a query; the
// poller re-runs the last submitted query to keep results fresh.
type Search struct {
	*Dashboard

	client   *wazuh.Client
	validate *validator.Validate

	mu      sync.Mutex
	current SearchQuery
}

// NewSearch builds the advanced-search dashboard. Until the first query it
// serves a match-all over the last 24 hours.
func NewSearch(client *wazuh.Client, cfg *config.Config, notifier *notify.Center, logger *zap.SugaredLogger) *Search {
	engine := core.NewEngine(core.EngineConfig{
		PageSize:       cfg.Dashboards.PageSizes.Search,
		TimestampField: "timestamp",
		NumericPolicy:  numericPolicy(cfg),
	})

	s := &Search{
		client:   client,
		validate: validator.New(),
		current:  SearchQuery{TimeRange: "24h", Size: 100},
	}

	fetch := func(ctx context.Context) ([]core.Record, Summary, error) {
		return s.run(ctx)
	}
	s.Dashboard = New("search", engine, fetch, notifier, logger)
	return s
}

// Execute validates and submits a query, then refreshes the result set.
func (s *Search) Execute(ctx context.Context, q SearchQuery) error {
	if err := s.validate.Struct(q); err != nil {
		return fmt.Errorf("invalid search query: %w", err)
	}
	if q.TimeRange == "" && (q.StartTime == "" || q.EndTime == "") {
		q.TimeRange = "24h"
	}
	if q.Size == 0 {
		q.Size = 100
	}

	s.mu.Lock()
	s.current = q
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// CurrentQuery returns the last submitted query.
func (s *Search) CurrentQuery() SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Search) run(ctx context.Context) ([]core.Record, Summary, error) {
	q := s.CurrentQuery()

	body := BuildSearchBody(q)
	resp, err := s.client.Search(ctx, searchIndexPattern+"/_search", body)
	if err != nil {
		return nil, nil, err
	}

	records := make([]core.Record, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		records = append(records, core.Record{
			"id":        hit.ID,
			"index":     hit.Index,
			"score":     hit.Score,
			"timestamp": str(hit.Source, "@timestamp"),
			"data":      hit.Source,
		})
	}

	summary := Summary{
		"total":        resp.Hits.Total.Value,
		"returned":     len(records),
		"query":        q.QueryString,
		"time_range":   q.TimeRange,
		"last_updated": time.Now().UTC().Format(time.RFC3339),
	}
	return records, summary, nil
}

// BuildSearchBody translates a SearchQuery into an OpenSearch request body.
// "field:value" searches one field; a quoted value forces an exact phrase;
// anything else fans out across the common alert fields.
func BuildSearchBody(q SearchQuery) map[string]interface{} {
	var mainQuery map[string]interface{}

	queryString := strings.TrimSpace(q.QueryString)
	switch {
	case queryString == "":
		mainQuery = map[string]interface{}{"match_all": map[string]interface{}{}}

	case strings.Contains(queryString, ":") && !strings.HasPrefix(queryString, ":"):
		field, value, _ := strings.Cut(queryString, ":")
		field = strings.TrimSpace(field)
		value = strings.TrimSpace(value)

		if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
			mainQuery = map[string]interface{}{
				"match_phrase": map[string]interface{}{field: value[1 : len(value)-1]},
			}
		} else {
			mainQuery = map[string]interface{}{
				"match": map[string]interface{}{
					field: map[string]interface{}{"query": value, "operator": "and"},
				},
			}
		}

	default:
		mainQuery = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":    queryString,
				"fields":   multiMatchFields,
				"operator": "and",
				"type":     "best_fields",
			},
		}
	}

	boolQuery := map[string]interface{}{
		"must":   []interface{}{mainQuery},
		"filter": []interface{}{map[string]interface{}{"range": map[string]interface{}{"@timestamp": searchTimeRange(q)}}},
	}
	for field, value := range q.Filters {
		boolQuery["filter"] = append(boolQuery["filter"].([]interface{}),
			map[string]interface{}{"term": map[string]interface{}{field: value}})
	}

	sortField := q.SortField
	if sortField == "" {
		sortField = "@timestamp"
	}
	sortOrder := q.SortOrder
	if sortOrder == "" {
		sortOrder = "desc"
	}

	size := q.Size
	if size == 0 {
		size = 100
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  size,
		"sort": []interface{}{
			map[string]interface{}{sortField: map[string]interface{}{"order": sortOrder}},
		},
	}
}

func searchTimeRange(q SearchQuery) map[string]string {
	if q.StartTime != "" && q.EndTime != "" {
		return map[string]string{
			"gte":    q.StartTime,
			"lte":    q.EndTime,
			"format": "strict_date_optional_time",
		}
	}

	now := time.Now()
	var window time.Duration
	switch q.TimeRange {
	case "15m":
		window = 15 * time.Minute
	case "1h":
		window = time.Hour
	case "7d":
		window = 7 * 24 * time.Hour
	case "30d":
		window = 30 * 24 * time.Hour
	default:
		window = 24 * time.Hour
	}

	return map[string]string{
		"gte":    now.Add(-window).Format(time.RFC3339),
		"lte":    now.Format(time.RFC3339),
		"format": "strict_date_optional_time",
	}
}

// SearchFields returns the searchable-field catalog rendered in the query
// builder dropdown.
func SearchFields() []SearchField {
	return []SearchField{
		{"agent.name", "keyword", "Agent Name", "Basic"},
		{"agent.id", "keyword", "Agent ID", "Basic"},
		{"agent.ip", "ip", "Agent IP Address", "Basic"},
		{"manager.name", "keyword", "Manager Name", "Basic"},
		{"rule.level", "integer", "Severity Level", "Basic"},
		{"rule.description", "text", "Rule Description", "Basic"},
		{"rule.id", "keyword", "Rule ID", "Basic"},
		{"location", "keyword", "Event Location", "Basic"},

		{"rule.mitre.tactic", "keyword", "MITRE Tactic", "MITRE"},
		{"rule.mitre.technique", "keyword", "MITRE Technique", "MITRE"},
		{"rule.mitre.id", "keyword", "MITRE Technique ID", "MITRE"},

		{"syscheck.event", "keyword", "FIM Event Type", "FIM"},
		{"syscheck.path", "keyword", "File/Registry Path", "FIM"},
		{"syscheck.value_name", "keyword", "Registry Value Name", "FIM"},
		{"syscheck.mode", "keyword", "FIM Check Mode", "FIM"},

		{"data.win.system.eventID", "integer", "Windows Event ID", "Windows"},
		{"data.win.eventdata.image", "keyword", "Process Image", "Windows"},
		{"data.win.eventdata.commandLine", "text", "Command Line", "Windows"},
		{"data.win.eventdata.parentImage", "keyword", "Parent Process", "Windows"},

		{"data.srcip", "ip", "Source IP Address", "Network"},
		{"data.srcport", "integer", "Source Port", "Network"},
		{"data.srcuser", "keyword", "Source User", "Network"},
		{"data.dstuser", "keyword", "Destination User", "Network"},

		{"rule.pci_dss", "keyword", "PCI DSS", "Compliance"},
		{"rule.hipaa", "keyword", "HIPAA", "Compliance"},
		{"rule.gdpr", "keyword", "GDPR", "Compliance"},

		{"decoder.name", "keyword", "Decoder Name", "Other"},
		{"full_log", "text", "Full Log Message", "Other"},
		{"@timestamp", "date", "Timestamp", "Other"},
	}
}
