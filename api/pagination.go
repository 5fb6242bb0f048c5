package api

import (
	"net/http"
	"strconv"
	"time"
)

// maxPage caps the page parameter against abuse.
const maxPage = 1000000

// PaginationResponse is the envelope every tabular endpoint returns.
type PaginationResponse struct {
	Items       interface{} `json:"items"`
	Total       int         `json:"total"`
	Page        int         `json:"page"`
	Limit       int         `json:"limit"`
	TotalPages  int         `json:"total_pages"`
	Stale       bool        `json:"stale"`
	LastUpdated time.Time   `json:"last_updated"`
}

// ParsePage extracts the 1-based page parameter. Missing or malformed
// values fall back to page 1.
func ParsePage(r *http.Request) int {
	p := r.URL.Query().Get("page")
	if p == "" {
		return 1
	}
	parsed, err := strconv.Atoi(p)
	if err != nil || parsed < 1 {
		return 1
	}
	if parsed > maxPage {
		return maxPage
	}
	return parsed
}
