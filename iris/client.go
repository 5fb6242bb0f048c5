// Package iris is a read-only client for the IRIS incident-response API,
// the upstream source for the case-management dashboard.
package iris

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"argus/config"

	"go.uber.org/zap"
)

// Client issues bearer-authenticated requests against an IRIS instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config, logger *zap.SugaredLogger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.IRIS.VerifySSL}, // #nosec G402 -- IRIS typically runs with a self-signed cert
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.IRIS.BaseURL, "/"),
		apiKey:  cfg.IRIS.APIKey,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger,
	}
}

// get issues a GET request and decodes the JSON response into a generic
// map. IRIS wraps payloads inconsistently, so extraction happens upstream.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (map[string]interface{}, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build IRIS request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debugw("IRIS request", "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("IRIS request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return map[string]interface{}{}, nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read IRIS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("IRIS %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode IRIS response: %w", err)
	}
	return result, nil
}

// Cases lists cases with pagination.
func (c *Client) Cases(ctx context.Context, page, perPage int) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	return c.get(ctx, "/manage/cases/list", params)
}

// AllCases fetches up to 1000 cases in one request, the bulk pull the
// summary statistics are derived from.
func (c *Client) AllCases(ctx context.Context) (map[string]interface{}, error) {
	return c.Cases(ctx, 1, 1000)
}

// CaseIOCs lists the IOCs attached to one case.
func (c *Client) CaseIOCs(ctx context.Context, caseID int) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("case_id", strconv.Itoa(caseID))
	return c.get(ctx, "/case/ioc/list", params)
}

// Users lists IRIS users for analyst-workload attribution.
func (c *Client) Users(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/manage/users/list", nil)
}

// TestConnection reports whether a minimal case listing succeeds.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.Cases(ctx, 1, 1)
	return err == nil
}

// ExtractCases pulls the case list out of whichever wrapper shape the IRIS
// version at hand produces: a bare list, {"data": [...]}, {"cases": [...]},
// or any list value whose members look like cases.
func ExtractCases(response map[string]interface{}) []map[string]interface{} {
	if response == nil {
		return nil
	}

	if data, ok := response["data"]; ok {
		if cases := asCaseList(data); cases != nil {
			return cases
		}
		// Newer IRIS versions nest the list one level deeper.
		if inner, ok := data.(map[string]interface{}); ok {
			for _, v := range inner {
				if cases := asCaseList(v); cases != nil {
					return cases
				}
			}
		}
	}
	if cases := asCaseList(response["cases"]); cases != nil {
		return cases
	}
	for _, v := range response {
		if cases := asCaseList(v); cases != nil {
			return cases
		}
	}
	return nil
}

func asCaseList(v interface{}) []map[string]interface{} {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil
		}
		out = append(out, m)
	}
	// Only accept lists whose members look like cases.
	for _, field := range []string{"case_id", "id", "name", "title"} {
		if _, ok := out[0][field]; ok {
			return out
		}
	}
	return nil
}
