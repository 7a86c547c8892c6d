package core

import (
	"context"

	"github.com/target/mammoth/internal/domain/model"
)

// This file contains the port definitions the worker runtime depends on.
// Adapters (HTTP dispatcher client, Redis stores) implement them; services and the
// job runner depend only on these interfaces.

// Dispatcher is the remote job dispatcher. Every call blocks the calling worker
// until the remote call completes or its timeout expires.
type Dispatcher interface {
	// FetchNextPending claims the next pending job. It returns (nil, nil) when no job is available.
	FetchNextPending(ctx context.Context, customValue string) (*model.JobRecord, error)
	// InsertEvent appends an audit note to the job's history.
	InsertEvent(ctx context.Context, jobID, message string) error
	// UpdateStatus transitions the job's status on the dispatcher.
	UpdateStatus(ctx context.Context, jobID string, status model.JobStatus) error
	// MarkHandled flags the originating request as answered. Idempotent.
	MarkHandled(ctx context.Context, jobID string) error
}

// OutcomeStore keeps terminal outcomes the dispatcher never recorded.
type OutcomeStore interface {
	Push(ctx context.Context, outcome model.LostOutcome) error
	Pop(ctx context.Context) (*model.LostOutcome, error)
	List(ctx context.Context, limit int64) ([]model.LostOutcome, error)
	Len(ctx context.Context) (int64, error)
}

// StopSignal is the read-only view of the shared cooperative stop flag.
type StopSignal interface {
	// Stopped reports whether a stop was requested. It never blocks.
	Stopped() bool
	// Done is closed once a stop was requested.
	Done() <-chan struct{}
}
