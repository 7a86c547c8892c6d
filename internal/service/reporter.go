// Package service implements the per-job status state machine and lost-outcome replay.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/mammoth/internal/backoff"
	"github.com/target/mammoth/internal/core"
	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
	"github.com/target/mammoth/internal/observability/metrics"
	"github.com/target/mammoth/internal/observability/statsd"
	"github.com/target/mammoth/internal/service/failurenotifier"
)

// Event messages written to the dispatcher's audit log.
const (
	MessageSuccess   = "Request processed successfully"
	MessageFailure   = "Failed to process request"
	MessageMalformed = MessageFailure + ": malformed payload"
)

// lostOutcomeTimeout bounds persisting and alerting a lost outcome. It applies even when
// the worker's context was cancelled, so a hard abort still leaves a dead letter behind.
const lostOutcomeTimeout = 5 * time.Second

// RetryPolicy controls how terminal status updates are retried.
type RetryPolicy struct {
	Attempts int              // total attempts including the first; <1 means 1
	Backoff  backoff.Strategy // delay before attempt n+1; nil means no wait
}

// DefaultRetryPolicy is 3 attempts with jittered exponential backoff from 200ms to 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Backoff:  backoff.Exponential{Initial: 200 * time.Millisecond, Max: 2 * time.Second, Jitter: true},
	}
}

// ReporterSinks groups the optional destinations for lost outcomes and metrics.
type ReporterSinks struct {
	Outcomes        core.OutcomeStore        // Optional: dead-letter store for unrecorded outcomes
	FailureNotifier *failurenotifier.Service // Optional: alert fan-out
	Metrics         statsd.Sink              // Optional: lifecycle metrics
}

// StatusReporterOptions groups dependencies for StatusReporter.
type StatusReporterOptions struct {
	Dispatcher core.Dispatcher // Required
	Retry      RetryPolicy
	Sinks      ReporterSinks
	Logger     *slog.Logger
}

// JobRef identifies the job being reported and who is reporting it.
type JobRef struct {
	JobID     string
	RequestID string
	WorkerID  string
	StartedAt time.Time
}

func (j JobRef) attrs() []any {
	return []any{"job_id", j.JobID, "request_id", j.RequestID, "worker_id", j.WorkerID}
}

// Report summarises the remote calls made for one job.
type Report struct {
	Status   model.JobStatus // terminal status decided locally
	Recorded bool            // the dispatcher accepted the terminal status
	Handled  bool            // mark-handled succeeded (Completed only)
	Attempts int             // terminal update attempts made
}

// StatusReporter drives a job through In Progress → Completed | Error on the dispatcher.
//
// Per job it issues, strictly in order: update-status(In Progress), the audit event,
// update-status(terminal) and, only once Completed was recorded, mark-handled.
// No failure of these calls is returned to the worker loop; every one is logged and
// a terminal status that could not be recorded is handed to the lost-outcome sinks.
type StatusReporter struct {
	dispatcher core.Dispatcher
	retry      RetryPolicy
	sinks      ReporterSinks
	logger     *slog.Logger
	now        func() time.Time
}

// NewStatusReporter constructs a StatusReporter.
func NewStatusReporter(opts StatusReporterOptions) (*StatusReporter, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := opts.Retry
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &StatusReporter{
		dispatcher: opts.Dispatcher,
		retry:      retry,
		sinks:      opts.Sinks,
		logger:     logger.With("component", "status_reporter"),
		now:        time.Now,
	}, nil
}

// Begin reports In Progress. A failure is logged and returned for information only;
// the caller still runs the callback and reports the terminal status.
func (r *StatusReporter) Begin(ctx context.Context, job JobRef) error {
	err := r.dispatcher.UpdateStatus(ctx, job.JobID, model.JobStatusInProgress)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		r.logger.WarnContext(ctx, "failed to mark job in progress",
			append(job.attrs(), "status_code", apperrors.StatusCode(err), "error", err)...)
	}
	metrics.EmitJobLifecycle(r.sinks.Metrics, metrics.JobMetric{
		Transition: metrics.TransitionInProgress,
		Result:     result,
		Err:        err,
	})
	return err
}

// Finish reports the callback outcome: a nil cause is success, anything else is failure.
func (r *StatusReporter) Finish(ctx context.Context, job JobRef, cause error) Report {
	if cause == nil {
		return r.finish(ctx, job, model.JobStatusCompleted, MessageSuccess)
	}
	return r.finish(ctx, job, model.JobStatusError, MessageFailure+": "+cause.Error())
}

// ReportMalformed reports a job whose payload could not be parsed. The callback never ran.
func (r *StatusReporter) ReportMalformed(ctx context.Context, job JobRef, cause error) Report {
	r.logger.WarnContext(ctx, "malformed job payload", append(job.attrs(), "error", cause)...)
	_ = r.Begin(ctx, job)
	return r.finish(ctx, job, model.JobStatusError, MessageMalformed)
}

func (r *StatusReporter) finish(ctx context.Context, job JobRef, status model.JobStatus, message string) Report {
	r.insertEvent(ctx, job, message)

	report := Report{Status: status}
	attempts, err := r.updateTerminal(ctx, job.JobID, status)
	report.Attempts = attempts

	transition := metrics.TransitionCompleted
	if status == model.JobStatusError {
		transition = metrics.TransitionError
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	var elapsed time.Duration
	if !job.StartedAt.IsZero() {
		elapsed = r.now().Sub(job.StartedAt)
	}
	metrics.EmitJobLifecycle(r.sinks.Metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   elapsed,
		Err:        err,
	})

	if err != nil {
		r.recordLost(ctx, job, status, attempts, err)
		return report
	}
	report.Recorded = true

	if status != model.JobStatusCompleted {
		return report
	}
	if err := r.dispatcher.MarkHandled(ctx, job.JobID); err != nil {
		r.logger.WarnContext(ctx, "failed to mark job handled",
			append(job.attrs(), "status_code", apperrors.StatusCode(err), "error", err)...)
		return report
	}
	report.Handled = true
	return report
}

// insertEvent is best-effort: failures are logged and counted, never retried.
func (r *StatusReporter) insertEvent(ctx context.Context, job JobRef, message string) {
	if err := r.dispatcher.InsertEvent(ctx, job.JobID, message); err != nil {
		r.logger.WarnContext(ctx, "failed to insert job event",
			append(job.attrs(), "message", message, "status_code", apperrors.StatusCode(err), "error", err)...)
		metrics.EmitEventInsertFailed(r.sinks.Metrics, err)
	}
}

// updateTerminal retries retryable failures up to the policy's attempt budget.
func (r *StatusReporter) updateTerminal(ctx context.Context, jobID string, status model.JobStatus) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = r.dispatcher.UpdateStatus(ctx, jobID, status)
		if err == nil {
			return attempt, nil
		}
		if attempt >= r.retry.Attempts || !apperrors.IsRetryable(err) {
			return attempt, err
		}

		r.logger.DebugContext(ctx, "retrying job status update",
			"job_id", jobID, "status", status, "attempt", attempt, "error", err)

		if r.retry.Backoff != nil {
			if sleepErr := backoff.Sleep(ctx, r.retry.Backoff.Delay(attempt)); sleepErr != nil {
				return attempt, errors.Join(err, sleepErr)
			}
		} else if ctx.Err() != nil {
			return attempt, errors.Join(err, ctx.Err())
		}
	}
}

func (r *StatusReporter) recordLost(ctx context.Context, job JobRef, status model.JobStatus, attempts int, err error) {
	outcome := model.LostOutcome{
		JobID:      job.JobID,
		RequestID:  job.RequestID,
		Status:     status,
		Error:      err.Error(),
		StatusCode: apperrors.StatusCode(err),
		Attempts:   attempts,
		WorkerID:   job.WorkerID,
		OccurredAt: r.now().UTC(),
	}

	r.logger.ErrorContext(ctx, "job status update lost",
		append(job.attrs(),
			"status", status,
			"status_code", outcome.StatusCode,
			"attempts", attempts,
			"data_loss", true,
			"error", err,
		)...)
	metrics.EmitStatusUpdateLost(r.sinks.Metrics, string(status), err)

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lostOutcomeTimeout)
	defer cancel()

	if r.sinks.Outcomes != nil {
		if pushErr := r.sinks.Outcomes.Push(sinkCtx, outcome); pushErr != nil {
			r.logger.ErrorContext(ctx, "failed to persist lost outcome",
				append(job.attrs(), "status", status, "data_loss", true, "error", pushErr)...)
		}
	}
	r.sinks.FailureNotifier.NotifyLostOutcome(sinkCtx, outcome, err)
}
