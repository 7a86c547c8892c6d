// Package notify defines the alert payload sent when a job outcome could not be recorded,
// and the sink contract implemented by the Slack and PagerDuty clients.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/mammoth/internal/backoff"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// LostOutcomeAlert describes a terminal job status the dispatcher never recorded.
type LostOutcomeAlert struct {
	JobID      string
	RequestID  string
	Status     string
	WorkerID   string
	StatusCode int
	Attempts   int
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming lost-outcome alerts.
type Sink interface {
	SendLostOutcome(ctx context.Context, alert LostOutcomeAlert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert LostOutcomeAlert) error

// SendLostOutcome implements the Sink interface.
func (f SinkFunc) SendLostOutcome(ctx context.Context, alert LostOutcomeAlert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}

// retryDelay spaces webhook retries.
var retryDelay backoff.Strategy = backoff.Exponential{Initial: 200 * time.Millisecond, Max: 2 * time.Second}

// Deliver calls send up to retries+1 times, waiting between attempts.
// It stops early when ctx ends and returns the last error.
func Deliver(ctx context.Context, retries int, send func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		if lastErr = send(ctx); lastErr == nil {
			return nil
		}
		if attempt <= retries {
			if err := backoff.Sleep(ctx, retryDelay.Delay(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// PostJSON posts body to url and treats any 2xx as success. service names the
// remote in error messages ("slack webhook", "pagerduty api").
func PostJSON(ctx context.Context, hc *http.Client, service, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	closeErr := resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if readErr != nil {
			return errors.Join(
				fmt.Errorf("read %s error response: %w", service, readErr),
				closeErr,
			)
		}
		return fmt.Errorf("%s %s: %s", service, resp.Status, strings.TrimSpace(string(respBody)))
	}
	if readErr != nil {
		return fmt.Errorf("drain %s response body: %w", service, readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

// Fallback returns value unless it is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
