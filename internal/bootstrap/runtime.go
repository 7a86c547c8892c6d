package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/target/mammoth/config"
	"github.com/target/mammoth/internal/adapters/dispatcher"
	"github.com/target/mammoth/internal/adapters/jobrunner"
	redisadapter "github.com/target/mammoth/internal/adapters/redis"
	"github.com/target/mammoth/internal/backoff"
	"github.com/target/mammoth/internal/core"
	"github.com/target/mammoth/internal/service"
)

// NewDispatcher builds the dispatcher client described by cfg. When hc is nil an
// authenticated client is built from the API key or OIDC settings.
func NewDispatcher(
	ctx context.Context,
	cfg config.DispatcherConfig,
	hc *http.Client,
	logger *slog.Logger,
) (*dispatcher.Client, error) {
	if hc == nil {
		var err error
		hc, err = dispatcher.NewHTTPClient(ctx, dispatcher.TransportOptions{
			Auth: dispatcher.AuthConfig{
				APIKey:           cfg.APIKey,
				OIDCIssuer:       cfg.OIDCIssuer,
				OIDCClientID:     cfg.OIDCClientID,
				OIDCClientSecret: cfg.OIDCClientSecret,
				OIDCScopes:       cfg.OIDCScopes,
			},
			Timeout:     cfg.Timeout,
			EnableHTTP2: cfg.HTTP2,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build dispatcher transport: %w", err)
		}
	}

	return dispatcher.NewClient(dispatcher.Options{
		BaseURL:    cfg.URL,
		HTTPClient: hc,
		Timeout:    cfg.Timeout,
		Logger:     logger,
	})
}

// FetchLimiter returns the process-wide next-pending throttle, or nil when
// FetchRate is unset.
func FetchLimiter(cfg config.DispatcherConfig) *rate.Limiter {
	if cfg.FetchRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.FetchRate), max(cfg.FetchBurst, 1))
}

// RetryPolicy converts the worker retry settings into a reporter policy.
func RetryPolicy(cfg config.WorkerConfig) service.RetryPolicy {
	return service.RetryPolicy{
		Attempts: cfg.StatusRetryAttempts,
		Backoff: backoff.Exponential{
			Initial: cfg.StatusRetryInitial,
			Max:     cfg.StatusRetryMax,
			Jitter:  true,
		},
	}
}

// RuntimeDeps groups what NewRuntime needs beyond configuration.
type RuntimeDeps struct {
	Config  *config.AppConfig     // Required; sanitized and validated
	Process jobrunner.ProcessFunc // Required

	// HTTPClient overrides the authenticated dispatcher transport.
	HTTPClient *http.Client
	// Redis overrides connecting from Config.Redis. The caller keeps ownership.
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// Runtime is a fully wired worker process: pool, reporter, optional Redis
// dead-letter store and remote stop listener.
type Runtime struct {
	Pool          *jobrunner.Pool
	Dispatcher    *dispatcher.Client
	Outcomes      *redisadapter.OutcomeStore // nil without Redis
	Observability Observability

	stopListener *redisadapter.StopListener
	redis        redis.UniversalClient
	ownsRedis    bool
	logger       *slog.Logger
}

// NewRuntime wires the worker runtime. Close releases what it opened.
func NewRuntime(ctx context.Context, deps RuntimeDeps) (*Runtime, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Process == nil {
		return nil, errors.New("process func is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{logger: logger, redis: deps.Redis}
	if rt.redis == nil {
		client, err := ConnectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.redis, rt.ownsRedis = client, client != nil
	}

	rt.Observability = BuildObservability(logger, cfg.Observability, notifierMetadata(cfg))

	var err error
	rt.Dispatcher, err = NewDispatcher(ctx, cfg.Dispatcher, deps.HTTPClient, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	sinks := service.ReporterSinks{
		FailureNotifier: rt.Observability.FailureNotifier,
		Metrics:         rt.Observability.Sink(),
	}
	if rt.redis != nil {
		rt.Outcomes = redisadapter.NewOutcomeStore(rt.redis, cfg.Redis.LostOutcomesKey)
		rt.stopListener = redisadapter.NewStopListener(rt.redis, cfg.Redis.StopChannel, logger)
		sinks.Outcomes = rt.Outcomes
	}

	reporter, err := service.NewStatusReporter(service.StatusReporterOptions{
		Dispatcher: rt.Dispatcher,
		Retry:      RetryPolicy(cfg.Worker),
		Sinks:      sinks,
		Logger:     logger,
	})
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	rt.Pool, err = jobrunner.NewPool(jobrunner.PoolOptions{
		Dispatcher:   rt.Dispatcher,
		Reporter:     reporter,
		Process:      deps.Process,
		Workers:      cfg.Worker.Count,
		CustomValue:  cfg.Worker.CustomValue,
		IdleBackoff:  cfg.Worker.IdleBackoff,
		FetchLimiter: FetchLimiter(cfg.Dispatcher),
		Shutdown:     core.NewShutdownCoordinator(),
		Logger:       logger,
		Metrics:      rt.Observability.Sink(),
	})
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	return rt, nil
}

func notifierMetadata(cfg *config.AppConfig) map[string]string {
	md := map[string]string{"custom_value": cfg.Worker.CustomValue}
	if host, err := os.Hostname(); err == nil {
		md["host"] = host
	}
	return md
}

// Run blocks until the pool exits. With Redis configured, a stop broadcast on the
// stop channel calls Stop; a listener failure is logged and does not end the pool.
func (r *Runtime) Run(ctx context.Context) error {
	if r.stopListener == nil {
		return r.Pool.Run(ctx)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := r.stopListener.Listen(listenCtx, func(string) { r.Pool.Stop() })
		if err != nil {
			r.logger.ErrorContext(ctx, "remote stop listener failed", "error", err)
		}
	}()

	err := r.Pool.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Stop requests a cooperative shutdown.
func (r *Runtime) Stop() { r.Pool.Stop() }

// Close releases the metrics socket and any Redis client the runtime opened.
func (r *Runtime) Close() error {
	var errs []error
	if err := r.Observability.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close statsd: %w", err))
	}
	if r.ownsRedis && r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Runner is what RunUntilSignalled drives.
type Runner interface {
	Run(ctx context.Context) error
	Stop()
}

// RunUntilSignalled runs r. The first SIGINT or SIGTERM asks r to stop after its
// in-flight jobs; a second one cancels the run context.
func RunUntilSignalled(ctx context.Context, r Runner, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	go watchSignals(ctx, sigs, r.Stop, cancel, logger)
	return r.Run(ctx)
}

func watchSignals(ctx context.Context, sigs <-chan os.Signal, stop func(), abort context.CancelFunc, logger *slog.Logger) {
	select {
	case <-ctx.Done():
		return
	case sig := <-sigs:
		logger.InfoContext(ctx, "shutting down; finishing in-flight jobs", "signal", sig.String())
		stop()
	}

	select {
	case <-ctx.Done():
	case sig := <-sigs:
		logger.WarnContext(ctx, "second signal; aborting in-flight jobs", "signal", sig.String())
		abort()
	}
}
