package api

import (
	"net/http"
	"strconv"
	"strings"

	"argus/core"

	"github.com/google/uuid"
)

// ParseFilterParams turns query parameters into engine predicates.
//
// The general form is repeatable `filter=field:op:value` triples. On top of
// that the dashboards keep their shorthand parameters: `severity` (minimum
// rule level), `agent` (exact agent name), and `q` (description substring).
func ParseFilterParams(r *http.Request) []core.FilterPredicate {
	query := r.URL.Query()
	filters := make([]core.FilterPredicate, 0)

	for _, triple := range query["filter"] {
		parts := strings.SplitN(triple, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		filters = append(filters, core.FilterPredicate{
			ID:       uuid.NewString(),
			Field:    parts[0],
			Operator: core.FilterOperator(parts[1]),
			Value:    parts[2],
		})
	}

	if v := query.Get("severity"); v != "" {
		if min, err := strconv.ParseFloat(v, 64); err == nil {
			// Rule levels are integral, so "at least n" is "greater than n-1".
			filters = append(filters, core.FilterPredicate{
				ID:       uuid.NewString(),
				Field:    "severity",
				Operator: core.OpGreaterThan,
				Value:    strconv.FormatFloat(min-1, 'f', -1, 64),
			})
		}
	}

	if v := query.Get("agent"); v != "" {
		filters = append(filters, core.FilterPredicate{
			ID:       uuid.NewString(),
			Field:    "agent_name",
			Operator: core.OpEquals,
			Value:    v,
		})
	}

	if v := query.Get("q"); v != "" {
		filters = append(filters, core.FilterPredicate{
			ID:       uuid.NewString(),
			Field:    "rule_description",
			Operator: core.OpContains,
			Value:    v,
		})
	}

	return filters
}

// ParseSortParam reads the `sort` parameter. A leading "-" means
// descending; a bare field name ascending. Returns false when absent.
func ParseSortParam(r *http.Request) (field string, direction core.SortDirection, ok bool) {
	s := r.URL.Query().Get("sort")
	if s == "" {
		return "", "", false
	}
	if strings.HasPrefix(s, "-") {
		return strings.TrimPrefix(s, "-"), core.SortDescending, true
	}
	return s, core.SortAscending, true
}
