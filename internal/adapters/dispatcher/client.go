// Package dispatcher implements the remote job dispatcher REST client.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/mammoth/internal/core"
	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
)

const (
	opFetchNextPending = "fetch next pending"
	opInsertEvent      = "insert event"
	opUpdateStatus     = "update status"
	opMarkHandled      = "mark handled"

	maxErrorBodyBytes = 4 * 1024
	defaultTimeout    = 10 * time.Second
)

// Options configures the dispatcher client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client // must already carry the bearer credential; see NewHTTPClient
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client talks to the dispatcher's REST surface.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ core.Dispatcher = (*Client)(nil)

// NewClient validates options and constructs a Client.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, apperrors.ValidationField("DISPATCHER_URL", "dispatcher base URL is required")
	}
	u, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.ValidationField("DISPATCHER_URL", fmt.Sprintf("invalid dispatcher base URL %q", raw))
	}
	if opts.HTTPClient == nil {
		return nil, apperrors.Validation("dispatcher http client is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: u,
		http:    opts.HTTPClient,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// FetchNextPending requests the next unclaimed job, optionally filtered by customValue.
// It returns (nil, nil) when the dispatcher has nothing pending.
func (c *Client) FetchNextPending(ctx context.Context, customValue string) (*model.JobRecord, error) {
	var query url.Values
	if customValue != "" {
		query = url.Values{"custom_value": []string{customValue}}
	}

	status, body, err := c.do(ctx, request{
		op:     opFetchNextPending,
		method: http.MethodGet,
		path:   "/jobs/next-pending",
		query:  query,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusNoContent:
		return nil, nil //nolint:nilnil // no pending job is not an error
	case status == http.StatusNotFound:
		return nil, nil //nolint:nilnil // the dispatcher answers 404 when the queue is empty
	case status != http.StatusOK:
		return nil, apperrors.Dispatcher(opFetchNextPending, status, errorMessage(body))
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil //nolint:nilnil // empty 200 means no pending job
	}

	var env model.JobEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, apperrors.MalformedPayload("", fmt.Errorf("decode job object: %w", err))
	}
	return model.NewJobRecord(env)
}

// InsertEvent appends an audit note to the job's history.
func (c *Client) InsertEvent(ctx context.Context, jobID, message string) error {
	return c.expect(ctx, request{
		op:     opInsertEvent,
		method: http.MethodPost,
		path:   "/events",
		body:   model.Event{JobID: jobID, Message: message},
	}, http.StatusCreated, http.StatusOK)
}

// UpdateStatus transitions the job's status on the dispatcher.
func (c *Client) UpdateStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	if !status.Valid() {
		return apperrors.Validationf("unknown job status %q", status)
	}
	return c.expect(ctx, request{
		op:     opUpdateStatus,
		method: http.MethodPut,
		path:   "/jobs/" + url.PathEscape(jobID) + "/update-status",
		body:   model.StatusUpdate{Status: status},
	}, http.StatusOK)
}

// MarkHandled flags the job's originating request as answered.
func (c *Client) MarkHandled(ctx context.Context, jobID string) error {
	return c.expect(ctx, request{
		op:     opMarkHandled,
		method: http.MethodPut,
		path:   "/jobs/" + url.PathEscape(jobID) + "/mark-handled",
	}, http.StatusOK, http.StatusNoContent)
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
}

func (c *Client) expect(ctx context.Context, req request, ok ...int) error {
	status, body, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	for _, want := range ok {
		if status == want {
			return nil
		}
	}
	return apperrors.Dispatcher(req.op, status, errorMessage(body))
}

// do performs one bounded remote call and returns the status and (size-limited) body.
func (c *Client) do(ctx context.Context, req request) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode body: %w", req.op, err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, apperrors.FromRequestError(req.op, err)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, limitFor(req.op)))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return 0, nil, apperrors.Transport(req.op, errors.Join(readErr, closeErr))
	}
	if closeErr != nil {
		c.logger.DebugContext(ctx, "close dispatcher response body", "op", req.op, "error", closeErr)
	}
	return resp.StatusCode, body, nil
}

// Job objects may be large; error bodies are only kept for log context.
func limitFor(op string) int64 {
	if op == opFetchNextPending {
		return 32 << 20
	}
	return maxErrorBodyBytes
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyBytes {
		msg = msg[:maxErrorBodyBytes]
	}
	return msg
}
