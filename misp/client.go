// Package misp is a read-only client for a MISP instance, the upstream
// source for the threat-intelligence feed panel.
package misp

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

// Event is one processed MISP event as the feed panel displays it.
type Event struct {
	ID             string      `json:"id"`
	Info           string      `json:"info"`
	Date           string      `json:"date"`
	Timestamp      string      `json:"timestamp"`
	ThreatLevelID  string      `json:"threat_level_id"`
	Analysis       string      `json:"analysis"`
	Published      bool        `json:"published"`
	Tags           []string    `json:"tags"`
	Attributes     []Attribute `json:"attributes"`
	AttributeCount int         `json:"attribute_count"`
}

// Attribute is one IOC attached to an event.
type Attribute struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Category string `json:"category"`
}

// Client issues API-key-authenticated requests against MISP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config, logger *zap.SugaredLogger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.MISP.VerifySSL}, // #nosec G402 -- MISP appliances commonly run self-signed
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.MISP.BaseURL, "/"),
		apiKey:  cfg.MISP.APIKey,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger,
	}
}

// RecentEvents fetches the most recently published events, newest first.
func (c *Client) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", "1")
	params.Set("sort", "timestamp")
	params.Set("direction", "desc")
	params.Set("published", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build MISP request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MISP events: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read MISP response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MISP events: unexpected status %d", resp.StatusCode)
	}

	events, err := decodeEventList(payload)
	if err != nil {
		return nil, err
	}
	if len(events) > limit {
		events = events[:limit]
	}

	c.logger.Debugw("MISP events fetched", "count", len(events))
	return events, nil
}

// TestConnection reports whether a single-event listing succeeds.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.RecentEvents(ctx, 1)
	return err == nil
}

// decodeEventList handles the response shapes MISP produces: a bare list,
// {"response": [...]}, or a single wrapped {"Event": {...}} object.
func decodeEventList(payload []byte) ([]Event, error) {
	var asList []map[string]interface{}
	if err := json.Unmarshal(payload, &asList); err == nil {
		return processEvents(asList), nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(payload, &asObject); err != nil {
		return nil, fmt.Errorf("decode MISP response: %w", err)
	}

	if response, ok := asObject["response"].([]interface{}); ok {
		list := make([]map[string]interface{}, 0, len(response))
		for _, item := range response {
			if m, ok := item.(map[string]interface{}); ok {
				list = append(list, m)
			}
		}
		return processEvents(list), nil
	}
	if _, ok := asObject["Event"]; ok {
		return processEvents([]map[string]interface{}{asObject}), nil
	}
	return nil, nil
}

func processEvents(raw []map[string]interface{}) []Event {
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		if e, ok := processEvent(item); ok {
			events = append(events, e)
		}
	}
	return events
}

// processEvent flattens one event, unwrapping the "Event" envelope when
// present. Events without an ID are dropped.
func processEvent(raw map[string]interface{}) (Event, bool) {
	data := raw
	if inner, ok := raw["Event"].(map[string]interface{}); ok {
		data = inner
	}

	id := stringField(data, "id")
	if id == "" {
		return Event{}, false
	}

	event := Event{
		ID:            id,
		Info:          stringFieldDefault(data, "info", "Untitled Event"),
		Date:          stringField(data, "date"),
		Timestamp:     stringField(data, "timestamp"),
		ThreatLevelID: stringFieldDefault(data, "threat_level_id", "1"),
		Analysis:      stringFieldDefault(data, "analysis", "0"),
		Published:     boolField(data, "published"),
	}

	if tags, ok := data["Tag"].([]interface{}); ok {
		for _, t := range tags {
			if tag, ok := t.(map[string]interface{}); ok {
				if name := stringField(tag, "name"); name != "" {
					event.Tags = append(event.Tags, name)
				}
			}
		}
	}
	if len(event.Tags) > 10 {
		event.Tags = event.Tags[:10]
	}

	if attrs, ok := data["Attribute"].([]interface{}); ok {
		for _, a := range attrs {
			attr, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			event.AttributeCount++
			if len(event.Attributes) < 8 {
				event.Attributes = append(event.Attributes, Attribute{
					Type:     stringFieldDefault(attr, "type", "unknown"),
					Value:    stringField(attr, "value"),
					Category: stringField(attr, "category"),
				})
			}
		}
	}

	return event, true
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func stringFieldDefault(m map[string]interface{}, key, fallback string) string {
	if s := stringField(m, key); s != "" {
		return s
	}
	return fallback
}

func boolField(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	case float64:
		return v != 0
	default:
		return false
	}
}
