package bootstrap

import (
	"log/slog"

	"github.com/target/mammoth/config"
	"github.com/target/mammoth/internal/observability/notify/pagerduty"
	"github.com/target/mammoth/internal/observability/notify/slack"
	"github.com/target/mammoth/internal/observability/statsd"
	"github.com/target/mammoth/internal/service/failurenotifier"
)

// Observability groups the shared metrics sink and lost-outcome notifier.
type Observability struct {
	Metrics         *statsd.Client // nil when metrics are disabled
	FailureNotifier *failurenotifier.Service
}

// Sink returns Metrics as a statsd.Sink, or nil so callers skip emission.
//
//nolint:ireturn // callers depend on the Sink port.
func (o Observability) Sink() statsd.Sink {
	if o.Metrics == nil {
		return nil
	}
	return o.Metrics
}

// Close releases the metrics socket.
func (o Observability) Close() error {
	return o.Metrics.Close()
}

// BuildObservability configures metrics and notification adapters. Sink
// construction failures are logged and the sink skipped; they never stop the worker.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, metadata map[string]string) Observability {
	if logger == nil {
		logger = slog.Default()
	}

	var metricsClient *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsClient = client
		}
	}

	return Observability{
		Metrics:         metricsClient,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications, metadata),
	}
}

func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	metadata map[string]string,
) *failurenotifier.Service {
	var sinks []failurenotifier.SinkRegistration

	if cfg.Enabled && cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.Enabled && cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:   logger,
		Sinks:    sinks,
		Metadata: metadata,
	})
}
