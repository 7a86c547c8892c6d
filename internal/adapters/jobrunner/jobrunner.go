// Package jobrunner runs the worker pool that pulls jobs from the dispatcher,
// invokes the caller's processing function and reports each outcome.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/target/mammoth/internal/core"
	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
	"github.com/target/mammoth/internal/observability/metrics"
	"github.com/target/mammoth/internal/observability/statsd"
	"github.com/target/mammoth/internal/service"
)

// ProcessFunc handles one job. A nil return reports Completed; an error (or a panic)
// reports Error with the error text appended to the failure event.
type ProcessFunc func(ctx context.Context, job *model.JobRecord) error

// DefaultIdleBackoff is the wait after an empty or failed fetch.
const DefaultIdleBackoff = 100 * time.Millisecond

// WorkerOptions configures a single Worker.
type WorkerOptions struct {
	ID          string // defaults to a random UUID
	Dispatcher  core.Dispatcher
	Reporter    *service.StatusReporter
	Process     ProcessFunc
	Stop        core.StopSignal
	CustomValue string
	IdleBackoff time.Duration
	// FetchLimiter throttles fetches; it may be shared by every worker in a pool.
	FetchLimiter *rate.Limiter
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// Worker owns one fetch → process → report loop.
type Worker struct {
	id          string
	dispatcher  core.Dispatcher
	reporter    *service.StatusReporter
	process     ProcessFunc
	stop        core.StopSignal
	customValue string
	idleBackoff time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewWorker validates options and constructs a Worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	switch {
	case opts.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case opts.Reporter == nil:
		return nil, errors.New("status reporter is required")
	case opts.Process == nil:
		return nil, errors.New("process func is required")
	case opts.Stop == nil:
		return nil, errors.New("stop signal is required")
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	idle := opts.IdleBackoff
	if idle <= 0 {
		idle = DefaultIdleBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		id:          id,
		dispatcher:  opts.Dispatcher,
		reporter:    opts.Reporter,
		process:     opts.Process,
		stop:        opts.Stop,
		customValue: opts.CustomValue,
		idleBackoff: idle,
		limiter:     opts.FetchLimiter,
		logger:      logger.With("worker_id", id),
		metrics:     opts.Metrics,
	}, nil
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Run loops until the stop signal is set or ctx is cancelled. Per-job failures never
// end the loop; a non-nil return means the worker itself is broken (misconfiguration,
// an unexpected error class from the dispatcher, or a panic outside the callback).
func (w *Worker) Run(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker %s panicked: %v", w.id, rec)
			w.logger.ErrorContext(ctx, "worker loop panicked", "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	for !w.stop.Stopped() && ctx.Err() == nil {
		if err := w.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// step performs one loop iteration.
func (w *Worker) step(ctx context.Context) error {
	if !w.throttle(ctx) {
		return nil
	}

	job, err := w.dispatcher.FetchNextPending(ctx, w.customValue)
	switch {
	case err == nil && job == nil:
		metrics.EmitFetch(w.metrics, metrics.ResultEmpty, nil)
		w.idle(ctx)
	case err == nil:
		metrics.EmitFetch(w.metrics, metrics.ResultJob, nil)
		w.handle(ctx, job)
	case apperrors.IsMalformedPayload(err):
		w.handleMalformed(ctx, err)
	case ctx.Err() != nil:
		// Hard abort while fetching; Run observes ctx on the next check.
	case apperrors.IsRecoverable(err):
		metrics.EmitFetch(w.metrics, metrics.ResultError, err)
		w.logger.WarnContext(ctx, "fetch next pending job failed",
			"custom_value", w.customValue,
			"status_code", apperrors.StatusCode(err),
			"error", err,
		)
		w.idle(ctx)
	default:
		metrics.EmitFetch(w.metrics, metrics.ResultError, err)
		return fmt.Errorf("fetch next pending: %w", err)
	}
	return nil
}

// throttle waits for a fetch token. It returns false when stop or cancellation
// arrives first; the unused reservation is handed back to the limiter.
func (w *Worker) throttle(ctx context.Context) bool {
	if w.limiter == nil {
		return true
	}
	r := w.limiter.Reserve()
	delay := r.Delay()
	if !r.OK() || delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
	case <-w.stop.Done():
	}
	r.Cancel()
	return false
}

// idle waits one backoff interval, returning early on stop or cancellation.
func (w *Worker) idle(ctx context.Context) {
	timer := time.NewTimer(w.idleBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.stop.Done():
	case <-timer.C:
	}
}

func (w *Worker) handle(ctx context.Context, job *model.JobRecord) {
	ref := service.JobRef{
		JobID:     job.JobID(),
		RequestID: job.RequestID(),
		WorkerID:  w.id,
		StartedAt: time.Now(),
	}

	_ = w.reporter.Begin(ctx, ref)

	cause := w.invoke(ctx, job)
	if cause != nil {
		w.logger.WarnContext(ctx, "job processing failed",
			"job_id", ref.JobID, "request_id", ref.RequestID, "error", cause)
	}

	report := w.reporter.Finish(ctx, ref, cause)
	w.logger.DebugContext(ctx, "job reported",
		"job_id", ref.JobID,
		"status", report.Status,
		"recorded", report.Recorded,
		"handled", report.Handled,
		"duration", time.Since(ref.StartedAt),
	)
}

// invoke calls the processing function, converting a panic into an error.
func (w *Worker) invoke(ctx context.Context, job *model.JobRecord) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.EmitCallbackPanic(w.metrics)
			w.logger.ErrorContext(ctx, "job callback panicked",
				"job_id", job.JobID(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return w.process(ctx, job)
}

func (w *Worker) handleMalformed(ctx context.Context, err error) {
	jobID := apperrors.JobID(err)
	if jobID == "" {
		// Nothing can be reported without a job id. Usually a proxy error page.
		metrics.EmitFetch(w.metrics, metrics.ResultError, err)
		w.logger.ErrorContext(ctx, "dropping malformed job without job id", "error", err)
		w.idle(ctx)
		return
	}
	metrics.EmitFetch(w.metrics, metrics.ResultJob, nil)
	w.reporter.ReportMalformed(ctx, service.JobRef{JobID: jobID, WorkerID: w.id, StartedAt: time.Now()}, err)
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Dispatcher  core.Dispatcher
	Reporter    *service.StatusReporter
	Process     ProcessFunc
	Workers     int // <= 0 means runtime.NumCPU()
	CustomValue string
	IdleBackoff time.Duration
	// FetchLimiter is shared by every worker; nil disables throttling.
	FetchLimiter *rate.Limiter
	// Shutdown is the shared stop signal; a new coordinator is created when nil.
	Shutdown *core.ShutdownCoordinator
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Pool runs a fixed set of Workers against the same dispatcher.
type Pool struct {
	workers     []*Worker
	shutdown    *core.ShutdownCoordinator
	customValue string
	logger      *slog.Logger
}

// NewPool constructs the pool and its workers.
func NewPool(opts PoolOptions) (*Pool, error) {
	n := opts.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	shutdown := opts.Shutdown
	if shutdown == nil {
		shutdown = core.NewShutdownCoordinator()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := make([]*Worker, 0, n)
	for range n {
		w, err := NewWorker(WorkerOptions{
			Dispatcher:   opts.Dispatcher,
			Reporter:     opts.Reporter,
			Process:      opts.Process,
			Stop:         shutdown,
			CustomValue:  opts.CustomValue,
			IdleBackoff:  opts.IdleBackoff,
			FetchLimiter: opts.FetchLimiter,
			Logger:       logger,
			Metrics:      opts.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("new worker: %w", err)
		}
		workers = append(workers, w)
	}

	return &Pool{
		workers:     workers,
		shutdown:    shutdown,
		customValue: opts.CustomValue,
		logger:      logger,
	}, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stop asks every worker to exit after its current job. It does not interrupt
// in-flight dispatcher calls and is safe to call more than once.
func (p *Pool) Stop() { p.shutdown.Stop() }

// Stopped reports whether Stop was called.
func (p *Pool) Stopped() bool { return p.shutdown.Stopped() }

// Run starts all workers and blocks until every one has exited.
//
// It returns nil after Stop, ctx.Err() when ctx was cancelled, or the first worker
// fault. A fault stops the remaining workers cooperatively so their in-flight jobs
// are still reported.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting worker pool", "workers", len(p.workers), "custom_value", p.customValue)

	// Cancelling ctx is a hard abort; it also trips the shared stop signal.
	release := context.AfterFunc(ctx, p.shutdown.Stop)
	defer release()

	var g errgroup.Group
	for _, w := range p.workers {
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				p.logger.ErrorContext(ctx, "worker failed; stopping pool", "worker_id", w.ID(), "error", err)
				p.shutdown.Stop()
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		p.shutdown.Stop()
		err = ctx.Err()
	}
	p.logger.InfoContext(ctx, "worker pool stopped", "error", err)
	return err
}
