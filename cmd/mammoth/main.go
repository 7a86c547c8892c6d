// Command mammoth runs the worker pool with the built-in JMESPath processor:
// a job completes when PROCESSOR_EXPRESSION is truthy for it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/mammoth/config"
	"github.com/target/mammoth/internal/bootstrap"
	"github.com/target/mammoth/internal/processor"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.Logging)

	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	predicate, err := processor.NewPredicate(cfg.Processor.Expression, logger)
	if err != nil {
		return err
	}

	rt, err := bootstrap.NewRuntime(ctx, bootstrap.RuntimeDeps{
		Config:  &cfg,
		Process: predicate.Process,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close runtime failed", "error", cerr)
		}
	}()

	logStartupInfo(ctx, logger, &cfg, rt)
	return bootstrap.RunUntilSignalled(ctx, rt, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig, rt *bootstrap.Runtime) {
	logger.InfoContext(ctx, "starting mammoth",
		"dispatcher_url", cfg.Dispatcher.URL,
		"oidc", cfg.Dispatcher.UsesOIDC(),
		"workers", rt.Pool.Size(),
		"custom_value", cfg.Worker.CustomValue,
		"expression", cfg.Processor.Expression,
		"redis", rt.Outcomes != nil,
		"metrics", rt.Observability.Metrics.Enabled(),
		"notifications", rt.Observability.FailureNotifier.Enabled(),
	)
}
