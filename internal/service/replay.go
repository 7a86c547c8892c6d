package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mammoth/internal/core"
	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
	"github.com/target/mammoth/internal/observability/metrics"
	"github.com/target/mammoth/internal/observability/statsd"
)

// ReplayServiceOptions groups dependencies for ReplayService.
type ReplayServiceOptions struct {
	Dispatcher core.Dispatcher   // Required
	Outcomes   core.OutcomeStore // Required
	Metrics    statsd.Sink       // Optional
	Logger     *slog.Logger      // Optional
}

// ReplayService re-sends lost terminal statuses to the dispatcher.
type ReplayService struct {
	dispatcher core.Dispatcher
	outcomes   core.OutcomeStore
	metrics    statsd.Sink
	logger     *slog.Logger
}

// ReplayResult counts what a Replay pass did.
type ReplayResult struct {
	Replayed int // status recorded by the dispatcher
	Requeued int // pushed back for a later pass
	Dropped  int // unreplayable and discarded
}

// NewReplayService constructs a ReplayService.
func NewReplayService(opts ReplayServiceOptions) (*ReplayService, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if opts.Outcomes == nil {
		return nil, errors.New("outcome store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayService{
		dispatcher: opts.Dispatcher,
		outcomes:   opts.Outcomes,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "outcome_replay"),
	}, nil
}

// Replay pops at most limit lost outcomes (all of them when limit <= 0) and re-sends each
// status; Completed outcomes are also marked handled. An outcome the dispatcher rejects
// again is pushed back; one whose status is not terminal is dropped. The pass stops at the first retryable failure, since the
// dispatcher is then unlikely to accept the rest.
func (s *ReplayService) Replay(ctx context.Context, limit int) (ReplayResult, error) {
	var res ReplayResult

	pending, err := s.outcomes.Len(ctx)
	if err != nil {
		return res, fmt.Errorf("count lost outcomes: %w", err)
	}
	if limit > 0 && int64(limit) < pending {
		pending = int64(limit)
	}

	for range pending {
		outcome, err := s.outcomes.Pop(ctx)
		if err != nil {
			return res, fmt.Errorf("pop lost outcome: %w", err)
		}
		if outcome == nil {
			return res, nil
		}
		if !outcome.Status.Terminal() {
			// No later pass can send a non-terminal status either.
			res.Dropped++
			metrics.EmitOutcomeReplayed(s.metrics, metrics.ResultError)
			s.logger.ErrorContext(ctx, "dropping lost outcome with non-terminal status",
				"job_id", outcome.JobID,
				"status", outcome.Status,
				"attempts", outcome.Attempts,
				"data_loss", true,
			)
			continue
		}

		err = s.replayOne(ctx, *outcome)
		if err == nil {
			res.Replayed++
			metrics.EmitOutcomeReplayed(s.metrics, metrics.ResultSuccess)
			continue
		}

		metrics.EmitOutcomeReplayed(s.metrics, metrics.ResultError)
		outcome.Attempts++
		outcome.Error = err.Error()
		outcome.StatusCode = apperrors.StatusCode(err)
		if pushErr := s.outcomes.Push(context.WithoutCancel(ctx), *outcome); pushErr != nil {
			s.logger.ErrorContext(ctx, "failed to requeue lost outcome",
				"job_id", outcome.JobID, "status", outcome.Status, "data_loss", true, "error", pushErr)
			return res, errors.Join(err, pushErr)
		}
		res.Requeued++

		s.logger.WarnContext(ctx, "lost outcome replay failed",
			"job_id", outcome.JobID,
			"status", outcome.Status,
			"status_code", outcome.StatusCode,
			"attempts", outcome.Attempts,
			"error", err,
		)
		if apperrors.IsRetryable(err) || apperrors.IsCanceled(err) {
			return res, fmt.Errorf("replay job %s: %w", outcome.JobID, err)
		}
	}
	return res, nil
}

func (s *ReplayService) replayOne(ctx context.Context, outcome model.LostOutcome) error {
	if err := s.dispatcher.UpdateStatus(ctx, outcome.JobID, outcome.Status); err != nil {
		return err
	}
	if outcome.Status != model.JobStatusCompleted {
		return nil
	}
	// The status is recorded now; a failed mark-handled is not worth a requeue.
	if err := s.dispatcher.MarkHandled(ctx, outcome.JobID); err != nil {
		s.logger.WarnContext(ctx, "failed to mark replayed job handled", "job_id", outcome.JobID, "error", err)
	}
	return nil
}
