package model

import "time"

// LostOutcome records a terminal status that was decided locally but could not be
// written to the dispatcher. It is the only job state ever kept outside the dispatcher.
type LostOutcome struct {
	JobID      string    `json:"job_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error"`
	StatusCode int       `json:"status_code,omitempty"`
	Attempts   int       `json:"attempts"`
	WorkerID   string    `json:"worker_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
