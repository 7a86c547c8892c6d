package testutil

import (
	"encoding/json"
)

// JobBuilder builds dispatcher job objects (the body of GET /jobs/next-pending) for tests.
type JobBuilder struct {
	fields map[string]any
}

// NewJob creates a JobBuilder with sensible defaults.
func NewJob(jobID string) *JobBuilder {
	return &JobBuilder{
		fields: map[string]any{
			"request_id":   1,
			"job_id":       jobID,
			"source_ip":    "127.0.0.1",
			"user_agent":   "testutil",
			"method":       "POST",
			"request_url":  "/ingest",
			"request_raw":  `{}`,
			"custom_value": nil,
		},
	}
}

// WithRequestID sets request_id (string or number).
func (b *JobBuilder) WithRequestID(id any) *JobBuilder {
	b.fields["request_id"] = id
	return b
}

// WithRawString sets request_raw to a JSON-encoded string.
func (b *JobBuilder) WithRawString(raw string) *JobBuilder {
	b.fields["request_raw"] = raw
	return b
}

// WithRawObject sets request_raw to a nested object.
func (b *JobBuilder) WithRawObject(obj map[string]any) *JobBuilder {
	b.fields["request_raw"] = obj
	return b
}

// WithCustomValue sets custom_value.
func (b *JobBuilder) WithCustomValue(v string) *JobBuilder {
	b.fields["custom_value"] = v
	return b
}

// JSON returns the encoded job object.
func (b *JobBuilder) JSON() []byte {
	out, err := json.Marshal(b.fields)
	if err != nil {
		panic(err)
	}
	return out
}
