package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mammoth/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	event := client.buildEvent(notify.LostOutcomeAlert{
		JobID:      "123",
		Status:     "Completed",
		StatusCode: 502,
		Error:      "boom",
		ErrorClass: "dispatcher_5xx",
		Metadata:   map[string]string{"job_id": "ignored", "zone": "b"},
	})

	assert.Equal(t, "key", event["routing_key"])
	assert.Equal(t, "trigger", event["event_action"])
	assert.Equal(t, "lost-outcome:123", event["dedup_key"])

	payload, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "critical", payload["severity"])
	assert.Equal(t, "mammoth", payload["source"])
	assert.Equal(t, "mammoth-worker", payload["component"])
	assert.Equal(t, "Status Completed for job 123 was not recorded by the dispatcher", payload["summary"])

	custom, ok := payload["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "123", custom["job_id"])
	assert.Equal(t, 502, custom["status_code"])
	assert.Equal(t, "b", custom["zone"])
}

func TestSendLostOutcome(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, client.SendLostOutcome(context.Background(), notify.LostOutcomeAlert{JobID: "7", Severity: "ERROR"}))
	assert.Equal(t, "rk", got["routing_key"])
	payload, _ := got["payload"].(map[string]any)
	assert.Equal(t, "error", payload["severity"])
}

func TestSendLostOutcomeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"invalid event"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	err = client.SendLostOutcome(context.Background(), notify.LostOutcomeAlert{JobID: "7"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event")
}
