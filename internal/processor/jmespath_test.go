package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
	"github.com/target/mammoth/internal/testutil"
)

func record(t *testing.T, b *testutil.JobBuilder) *model.JobRecord {
	t.Helper()
	var env model.JobEnvelope
	require.NoError(t, json.Unmarshal(b.JSON(), &env))
	rec, err := model.NewJobRecord(env)
	require.NoError(t, err)
	return rec
}

func TestNewPredicate(t *testing.T) {
	p, err := NewPredicate("  ", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultExpression, p.Expression())

	_, err = NewPredicate("payload.[", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "PROCESSOR_EXPRESSION", apperrors.GetField(err))
}

func TestPredicate_Process(t *testing.T) {
	job := record(t, testutil.NewJob("7").
		WithRawObject(map[string]any{"amount": 12, "tags": []any{"vip"}, "note": ""}).
		WithCustomValue("orders"))

	tests := []struct {
		expr string
		ok   bool
	}{
		{DefaultExpression, true},
		{"payload.amount > `10`", true},
		{"payload.amount > `100`", false},
		{"payload.tags", true},
		{"payload.note", false},
		{"payload.missing", false},
		{"custom_value == 'orders'", true},
		{"method == 'POST' && job_id == '7'", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := NewPredicate(tt.expr, nil)
			require.NoError(t, err)
			err = p.Process(context.Background(), job)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDocument(t *testing.T) {
	doc := Document(record(t, testutil.NewJob("3").WithRequestID("r")))
	assert.Equal(t, "3", doc["job_id"])
	assert.Equal(t, "r", doc["request_id"])
	assert.Nil(t, doc["custom_value"])
	assert.Equal(t, map[string]any{}, doc["payload"])
}
