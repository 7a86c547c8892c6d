// Package mammoth runs a pool of workers that claim jobs from a remote dispatcher,
// hand each one to a caller-supplied function and report the outcome back.
//
// A minimal consumer:
//
//	var cfg config.AppConfig
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//	m, err := mammoth.New(ctx, mammoth.Options{Config: cfg, Process: handle})
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//	return m.Run(ctx)
package mammoth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/target/mammoth/config"
	"github.com/target/mammoth/internal/adapters/jobrunner"
	"github.com/target/mammoth/internal/bootstrap"
	"github.com/target/mammoth/internal/domain/model"
)

// Job is a claimed job. Its identifiers are read-only; Payload returns a copy.
type Job = model.JobRecord

// ProcessFunc handles one job. Returning nil reports Completed. Returning an error,
// or panicking, reports Error with the error text in the job's event history.
type ProcessFunc = jobrunner.ProcessFunc

// Options configures a Mammoth instance.
type Options struct {
	Config  config.AppConfig
	Process ProcessFunc

	Logger *slog.Logger
	// HTTPClient replaces the authenticated dispatcher transport built from Config.
	HTTPClient *http.Client
	// Redis replaces the client built from Config.Redis. Mammoth does not close it.
	Redis redis.UniversalClient
}

// Mammoth is a running worker pool.
type Mammoth struct {
	rt *bootstrap.Runtime
}

// New sanitizes and validates opts.Config and wires the worker pool. It may
// contact the OIDC issuer and Redis.
func New(ctx context.Context, opts Options) (*Mammoth, error) {
	if opts.Process == nil {
		return nil, errors.New("mammoth: process func is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt, err := bootstrap.NewRuntime(ctx, bootstrap.RuntimeDeps{
		Config:     &cfg,
		Process:    opts.Process,
		HTTPClient: opts.HTTPClient,
		Redis:      opts.Redis,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Mammoth{rt: rt}, nil
}

// Run blocks until Stop is called and every in-flight job is reported, or until a
// worker fails. Cancelling ctx aborts in-flight work and Run returns ctx.Err().
func (m *Mammoth) Run(ctx context.Context) error { return m.rt.Run(ctx) }

// Stop asks every worker to finish its current job and exit. Safe to call repeatedly.
func (m *Mammoth) Stop() { m.rt.Stop() }

// Stopped reports whether Stop was requested.
func (m *Mammoth) Stopped() bool { return m.rt.Pool.Stopped() }

// Workers returns the pool size.
func (m *Mammoth) Workers() int { return m.rt.Pool.Size() }

// Close releases connections opened by New.
func (m *Mammoth) Close() error { return m.rt.Close() }
