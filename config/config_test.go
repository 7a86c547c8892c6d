package config

import (
	"runtime"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, vars map[string]string) AppConfig {
	t.Helper()
	var cfg AppConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: vars}))
	cfg.Sanitize()
	return cfg
}

func TestAppConfig_Defaults(t *testing.T) {
	cfg := parse(t, map[string]string{})

	assert.Equal(t, 10*time.Second, cfg.Dispatcher.Timeout)
	assert.True(t, cfg.Dispatcher.HTTP2)
	assert.Zero(t, cfg.Dispatcher.FetchRate)
	assert.Equal(t, 1, cfg.Dispatcher.FetchBurst)

	assert.Equal(t, runtime.NumCPU(), cfg.Worker.Count)
	assert.Equal(t, 100*time.Millisecond, cfg.Worker.IdleBackoff)
	assert.Equal(t, 3, cfg.Worker.StatusRetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Worker.StatusRetryInitial)
	assert.Equal(t, 2*time.Second, cfg.Worker.StatusRetryMax)

	assert.Equal(t, "`true`", cfg.Processor.Expression)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "mammoth:stop", cfg.Redis.StopChannel)
	assert.Equal(t, "mammoth:lost-outcomes", cfg.Redis.LostOutcomesKey)

	assert.Equal(t, "mammoth", cfg.Observability.Metrics.Prefix)
	assert.Equal(t, "mammoth", cfg.Observability.Notifications.Slack.Username)
	assert.Equal(t, "mammoth-worker", cfg.Observability.Notifications.PagerDuty.Component)
}

func TestAppConfig_ParseEnv(t *testing.T) {
	cfg := parse(t, map[string]string{
		"DISPATCHER_URL":         " https://dispatcher.example.com/api/ ",
		"DISPATCHER_API_KEY":     "secret",
		"DISPATCHER_FETCH_RATE":  "2.5",
		"DISPATCHER_OIDC_SCOPES": "jobs.read, ,jobs.write",
		"WORKER_COUNT":           "4",
		"WORKER_CUSTOM_VALUE":    " orders ",
		"PROCESSOR_EXPRESSION":   "payload.ok",
		"LOG_LEVEL":              "DEBUG",
		"LOG_FORMAT":             "Text",
		"REDIS_ENABLED":          "true",
		"REDIS_CLUSTER_NODES":    "a:7000,b:7000",
	})

	assert.Equal(t, "https://dispatcher.example.com/api", cfg.Dispatcher.URL)
	assert.InDelta(t, 2.5, cfg.Dispatcher.FetchRate, 0.001)
	assert.Equal(t, []string{"jobs.read", "jobs.write"}, cfg.Dispatcher.OIDCScopes)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, "orders", cfg.Worker.CustomValue)
	assert.Equal(t, "payload.ok", cfg.Processor.Expression)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"a:7000", "b:7000"}, cfg.Redis.ClusterNodes)
	require.NoError(t, cfg.Validate())
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr []string
	}{
		{
			name:    "missing url and key",
			vars:    map[string]string{},
			wantErr: []string{"DISPATCHER_URL is required", "DISPATCHER_API_KEY is required"},
		},
		{
			name:    "relative url",
			vars:    map[string]string{"DISPATCHER_URL": "/jobs", "DISPATCHER_API_KEY": "k"},
			wantErr: []string{"not an absolute URL"},
		},
		{
			name: "oidc without secret",
			vars: map[string]string{
				"DISPATCHER_URL":            "http://localhost:8080",
				"DISPATCHER_OIDC_ISSUER":    "https://issuer.example.com",
				"DISPATCHER_OIDC_CLIENT_ID": "worker",
			},
			wantErr: []string{"DISPATCHER_OIDC_CLIENT_SECRET"},
		},
		{
			name: "bad log level",
			vars: map[string]string{
				"DISPATCHER_URL":     "http://localhost:8080",
				"DISPATCHER_API_KEY": "k",
				"LOG_LEVEL":          "loud",
			},
			wantErr: []string{"LOG_LEVEL"},
		},
		{
			name: "bad log format",
			vars: map[string]string{
				"DISPATCHER_URL":     "http://localhost:8080",
				"DISPATCHER_API_KEY": "k",
				"LOG_FORMAT":         "xml",
			},
			wantErr: []string{"LOG_FORMAT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t, tt.vars)
			err := cfg.Validate()
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestAppConfig_OIDCReplacesAPIKey(t *testing.T) {
	cfg := parse(t, map[string]string{
		"DISPATCHER_URL":                "http://localhost:8080",
		"DISPATCHER_OIDC_ISSUER":        "https://issuer.example.com",
		"DISPATCHER_OIDC_CLIENT_ID":     "worker",
		"DISPATCHER_OIDC_CLIENT_SECRET": "s3cret",
	})
	assert.True(t, cfg.Dispatcher.UsesOIDC())
	require.NoError(t, cfg.Validate())
}

func TestDispatcherConfig_SanitizeLeavesCopiesAlone(t *testing.T) {
	orig := DispatcherConfig{OIDCScopes: []string{" ", "jobs.read ", "", "jobs.write"}}
	cfg := orig
	cfg.Sanitize()

	assert.Equal(t, []string{"jobs.read", "jobs.write"}, cfg.OIDCScopes)
	assert.Equal(t, []string{" ", "jobs.read ", "", "jobs.write"}, orig.OIDCScopes)
}

func TestWorkerConfig_Sanitize(t *testing.T) {
	cfg := WorkerConfig{
		Count:               -1,
		IdleBackoff:         0,
		StatusRetryAttempts: 0,
		StatusRetryInitial:  time.Second,
		StatusRetryMax:      time.Millisecond,
	}
	cfg.Sanitize()

	assert.Equal(t, runtime.NumCPU(), cfg.Count)
	assert.Equal(t, 100*time.Millisecond, cfg.IdleBackoff)
	assert.Equal(t, 1, cfg.StatusRetryAttempts)
	assert.Equal(t, time.Second, cfg.StatusRetryMax)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}
	cfg.Sanitize()
	assert.False(t, cfg.Enabled, "expected enabled to be false when address is empty")

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}
	cfg.Sanitize()
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "statsd:1234", cfg.StatsdAddress)
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
		},
	}
	cfg.Sanitize()

	assert.Positive(t, cfg.Timeout)
	assert.Zero(t, cfg.RetryLimit)
	assert.False(t, cfg.Slack.Enabled, "slack needs a webhook url")
	assert.False(t, cfg.PagerDuty.Enabled, "pagerduty needs a routing key")
	assert.Equal(t, "mammoth", cfg.Slack.Username)
	assert.Equal(t, "mammoth", cfg.PagerDuty.Source)
	assert.Equal(t, "mammoth-worker", cfg.PagerDuty.Component)

	// Disabled top-level disables child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()
	assert.False(t, cfg.Slack.Enabled)
	assert.False(t, cfg.PagerDuty.Enabled)
}
