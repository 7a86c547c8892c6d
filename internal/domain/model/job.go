// Package model defines the core data types exchanged with the job dispatcher.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/target/mammoth/internal/errors"
)

// JobStatus represents the dispatcher-side status of a job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "Pending"
	// JobStatusInProgress indicates a worker has claimed the job and is running the callback.
	JobStatusInProgress JobStatus = "In Progress"
	// JobStatusCompleted indicates the callback reported success.
	JobStatusCompleted JobStatus = "Completed"
	// JobStatusError indicates the callback reported failure or panicked.
	JobStatusError JobStatus = "Error"
)

// Valid returns true if the JobStatus is one of the known statuses.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusInProgress || s == JobStatusCompleted || s == JobStatusError
}

// Terminal reports whether s ends the job's lifecycle on this side.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// CanTransition reports whether moving a job from one status to another is allowed.
// Pending → In Progress → (Completed | Error) is the only valid path.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusInProgress
	case JobStatusInProgress:
		return to == JobStatusCompleted || to == JobStatusError
	default:
		return false
	}
}

// JobEnvelope is the job object as returned by GET /jobs/next-pending.
type JobEnvelope struct {
	RequestID   json.RawMessage `json:"request_id"`
	JobID       json.RawMessage `json:"job_id"`
	SourceIP    string          `json:"source_ip"`
	UserAgent   string          `json:"user_agent"`
	Method      string          `json:"method"`
	RequestURL  string          `json:"request_url"`
	RequestRaw  json.RawMessage `json:"request_raw"`
	CustomValue *string         `json:"custom_value,omitempty"`
}

// JobRecord is an immutable snapshot of one unit of work fetched from the dispatcher.
// Construct it with NewJobRecord; the payload is always held in structured form.
type JobRecord struct {
	requestID   string
	jobID       string
	sourceIP    string
	userAgent   string
	method      string
	requestURL  string
	payload     map[string]any
	customValue *string
}

// NewJobRecord normalises a dispatcher envelope into a JobRecord.
// request_raw may be a JSON-encoded string or an already-structured object; anything
// that does not decode to a JSON object fails with a MalformedPayload error.
func NewJobRecord(env JobEnvelope) (*JobRecord, error) {
	jobID, err := scalarID(env.JobID)
	if err != nil || jobID == "" {
		return nil, apperrors.MalformedPayload("", errors.New("job_id is missing or not a scalar"))
	}
	requestID, err := scalarID(env.RequestID)
	if err != nil {
		return nil, apperrors.MalformedPayload(jobID, fmt.Errorf("request_id: %w", err))
	}

	payload, err := DecodePayload(env.RequestRaw)
	if err != nil {
		return nil, apperrors.MalformedPayload(jobID, err)
	}

	return &JobRecord{
		requestID:   requestID,
		jobID:       jobID,
		sourceIP:    env.SourceIP,
		userAgent:   env.UserAgent,
		method:      env.Method,
		requestURL:  env.RequestURL,
		payload:     payload,
		customValue: env.CustomValue,
	}, nil
}

// DecodePayload turns a raw request_raw value into structured data.
func DecodePayload(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("request_raw is empty")
	}

	// A JSON string carries the payload encoded once more.
	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, fmt.Errorf("decode request_raw string: %w", err)
		}
		trimmed = bytes.TrimSpace([]byte(encoded))
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("request_raw is not a JSON object")
	}

	var out map[string]any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decode request_raw: %w", err)
	}
	return out, nil
}

// scalarID accepts a JSON string or number and returns its string form.
func scalarID(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", fmt.Errorf("not a string or number: %s", trimmed)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", err
	}
	return n.String(), nil
}

// RequestID identifies the HTTP request received by the dispatcher.
func (j *JobRecord) RequestID() string { return j.requestID }

// JobID identifies the logical job; used for every status call.
func (j *JobRecord) JobID() string { return j.jobID }

// SourceIP is the address the original request came from.
func (j *JobRecord) SourceIP() string { return j.sourceIP }

// UserAgent of the original request.
func (j *JobRecord) UserAgent() string { return j.userAgent }

// Method of the original request.
func (j *JobRecord) Method() string { return j.method }

// RequestURL of the original request.
func (j *JobRecord) RequestURL() string { return j.requestURL }

// CustomValue returns the filter tag and whether one was set.
func (j *JobRecord) CustomValue() (string, bool) {
	if j.customValue == nil {
		return "", false
	}
	return *j.customValue, true
}

// Payload returns a copy of the top level of the structured request payload.
func (j *JobRecord) Payload() map[string]any {
	out := make(map[string]any, len(j.payload))
	for k, v := range j.payload {
		out[k] = v
	}
	return out
}

// PayloadValue returns a single top-level payload field.
func (j *JobRecord) PayloadValue(key string) (any, bool) {
	v, ok := j.payload[key]
	return v, ok
}

// Event is the body of POST /events.
type Event struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// StatusUpdate is the body of PUT /jobs/{job_id}/update-status.
type StatusUpdate struct {
	Status JobStatus `json:"status"`
}
