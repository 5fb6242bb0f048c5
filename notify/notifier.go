// Package notify is the server-side replacement for the dashboards' toast
// notifications: fetch failures and recoveries land here as dismissible
// notices that the UI polls, with an optional webhook forwarder for
// operators who want them pushed.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"argus/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one dismissible notice.
type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"` // dashboard or component name
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Dismissed bool      `json:"dismissed"`
}

// Center retains recent notifications in memory and optionally forwards
// them to a webhook. Fetch errors never propagate into the engines; they
// end up here instead.
type Center struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
	maxRetained   int

	webhookURL string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewCenter creates a notification center. webhookURL may be empty.
func NewCenter(webhookURL string, maxRetained int, logger *zap.SugaredLogger) *Center {
	if maxRetained <= 0 {
		maxRetained = 200
	}
	return &Center{
		notifications: make(map[string]*Notification),
		maxRetained:   maxRetained,
		webhookURL:    webhookURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// Notify records a notification and forwards it to the webhook when one is
// configured. Webhook delivery is fire-and-forget; a failed delivery only
// logs.
func (c *Center) Notify(severity Severity, source, format string, args ...interface{}) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Severity:  severity,
		Source:    source,
		Message:   fmt.Sprintf(format, args...),
		CreatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.notifications[n.ID] = &n
	c.evictLocked()
	c.mu.Unlock()

	metrics.NotificationsEmitted.WithLabelValues(string(severity)).Inc()

	switch severity {
	case SeverityError:
		c.logger.Errorw(n.Message, "source", source, "notification_id", n.ID)
	case SeverityWarning:
		c.logger.Warnw(n.Message, "source", source, "notification_id", n.ID)
	default:
		c.logger.Infow(n.Message, "source", source, "notification_id", n.ID)
	}

	if c.webhookURL != "" {
		go c.forward(n)
	}
	return n
}

// Dismiss marks a notification dismissed. Unknown IDs are a no-op.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.notifications[id]
	if !ok {
		return false
	}
	n.Dismissed = true
	return true
}

// Active returns undismissed notifications, newest first.
func (c *Center) Active() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Notification, 0, len(c.notifications))
	for _, n := range c.notifications {
		if !n.Dismissed {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// evictLocked drops the oldest notifications beyond the retention cap.
func (c *Center) evictLocked() {
	if len(c.notifications) <= c.maxRetained {
		return
	}
	all := make([]*Notification, 0, len(c.notifications))
	for _, n := range c.notifications {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	for _, n := range all[:len(all)-c.maxRetained] {
		delete(c.notifications, n.ID)
	}
}

func (c *Center) forward(n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		c.logger.Errorf("Failed to marshal notification %s: %v", n.ID, err)
		return
	}

	resp, err := c.httpClient.Post(c.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		c.logger.Warnf("Webhook delivery failed for notification %s: %v", n.ID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warnf("Webhook returned status %d for notification %s", resp.StatusCode, n.ID)
	}
}
