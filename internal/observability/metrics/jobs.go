// Package metrics emits the worker's job lifecycle metrics.
package metrics

import (
	"time"

	obserrors "github.com/target/mammoth/internal/observability/errors"
	"github.com/target/mammoth/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultJob     = "job"
	ResultEmpty   = "empty"
)

// Transition constants for the job.transition metric.
const (
	TransitionInProgress = "in_progress"
	TransitionCompleted  = "completed"
	TransitionError      = "error"
)

// Metric names.
const (
	MetricFetch             = "job.fetch"
	MetricTransition        = "job.transition"
	MetricDuration          = "job.duration"
	MetricStatusUpdateLost  = "job.status_update_lost"
	MetricCallbackPanic     = "job.callback_panic"
	MetricOutcomeReplayed   = "job.outcome_replayed"
	MetricEventInsertFailed = "job.event_insert_failed"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits job.transition and, when a duration is set, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	withErrorClass(tags, in.Result, in.Err)

	sink.Count(MetricTransition, 1, tags)

	if in.Duration > 0 {
		sink.Timing(MetricDuration, in.Duration, CloneTags(tags))
	}
}

// EmitFetch records one fetch attempt: ResultJob, ResultEmpty or ResultError.
func EmitFetch(sink statsd.Sink, result string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": result}
	withErrorClass(tags, result, err)
	sink.Count(MetricFetch, 1, tags)
}

// EmitStatusUpdateLost counts a terminal status the dispatcher never recorded.
func EmitStatusUpdateLost(sink statsd.Sink, status string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"status": status}
	withErrorClass(tags, ResultError, err)
	sink.Count(MetricStatusUpdateLost, 1, tags)
}

// EmitCallbackPanic counts a recovered panic from the processing function.
func EmitCallbackPanic(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count(MetricCallbackPanic, 1, nil)
}

// EmitEventInsertFailed counts a best-effort audit event that was dropped.
func EmitEventInsertFailed(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{}
	withErrorClass(tags, ResultError, err)
	sink.Count(MetricEventInsertFailed, 1, tags)
}

// EmitOutcomeReplayed records one lost-outcome replay attempt.
func EmitOutcomeReplayed(sink statsd.Sink, result string) {
	if sink == nil {
		return
	}
	sink.Count(MetricOutcomeReplayed, 1, map[string]string{"result": result})
}

func withErrorClass(tags map[string]string, result string, err error) {
	if err == nil || result != ResultError {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
