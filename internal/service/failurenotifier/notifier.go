// Package failurenotifier fans lost job outcomes out to alerting sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/mammoth/internal/domain/model"
	obserrors "github.com/target/mammoth/internal/observability/errors"
	"github.com/target/mammoth/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Metadata is attached to every alert (host, deployment, custom value filter).
	Metadata map[string]string
}

// Service dispatches lost-outcome alerts to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	metadata map[string]string
}

// NewService constructs a failure notifier. Nil sinks are ignored.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	metadata := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		if k != "" && v != "" {
			metadata[k] = v
		}
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		sinks:    sinks,
		metadata: metadata,
	}
}

// NotifyLostOutcome fans the alert out to every sink and waits for all deliveries.
// cause is the error that prevented the status update; it only feeds the error class.
func (s *Service) NotifyLostOutcome(ctx context.Context, outcome model.LostOutcome, cause error) {
	if s == nil || len(s.sinks) == 0 {
		return
	}

	alert := notify.LostOutcomeAlert{
		JobID:      outcome.JobID,
		RequestID:  outcome.RequestID,
		Status:     string(outcome.Status),
		WorkerID:   outcome.WorkerID,
		StatusCode: outcome.StatusCode,
		Attempts:   outcome.Attempts,
		Error:      outcome.Error,
		ErrorClass: obserrors.Classify(cause),
		Severity:   notify.SeverityCritical,
		OccurredAt: outcome.OccurredAt,
		Metadata:   s.metadata,
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendLostOutcome(ctx, alert); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", alert.JobID,
					"status", alert.Status,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
