// Package pagerduty triggers PagerDuty incidents for lost job outcomes.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/mammoth/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint (tests, regional ingest).
	Endpoint string
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "mammoth"),
		component:  notify.Fallback(strings.TrimSpace(cfg.Component), "mammoth-worker"),
		endpoint:   notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendLostOutcome submits a trigger event to PagerDuty.
func (c *Client) SendLostOutcome(ctx context.Context, alert notify.LostOutcomeAlert) error {
	body, err := json.Marshal(c.buildEvent(alert))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return notify.Deliver(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "pagerduty api", c.endpoint, body)
	})
}

func (c *Client) buildEvent(alert notify.LostOutcomeAlert) map[string]any {
	severity := notify.Fallback(strings.ToLower(alert.Severity), notify.SeverityCritical)

	occurredAt := alert.OccurredAt.UTC()
	if alert.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"job_id":      alert.JobID,
		"request_id":  alert.RequestID,
		"status":      alert.Status,
		"worker_id":   alert.WorkerID,
		"attempts":    alert.Attempts,
		"error":       alert.Error,
		"error_class": alert.ErrorClass,
	}
	if alert.StatusCode != 0 {
		custom["status_code"] = alert.StatusCode
	}
	for k, v := range alert.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	// One incident per job: repeated losses for the same job collapse.
	dedupKey := "lost-outcome:" + notify.Fallback(alert.JobID, "unknown")

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary": fmt.Sprintf(
				"Status %s for job %s was not recorded by the dispatcher",
				notify.Fallback(alert.Status, "unknown"),
				notify.Fallback(alert.JobID, "unknown"),
			),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}
