package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/mammoth/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "transport", err: apperrors.Transport("fetch", errors.New("dial")), want: "transport"},
		{name: "dispatcher 503", err: apperrors.Dispatcher("update", 503, ""), want: "dispatcher_5xx"},
		{name: "dispatcher 409", err: apperrors.Dispatcher("update", 409, ""), want: "dispatcher_4xx"},
		{name: "dispatcher 429", err: apperrors.Dispatcher("update", 429, ""), want: "dispatcher_throttled"},
		{name: "wrapped malformed", err: fmt.Errorf("job: %w", apperrors.MalformedPayload("1", nil)), want: "malformed_payload"},
		{name: "plain", err: errors.New("boom"), want: "errors_errorstring"},
		{name: "wrapped context", err: fmt.Errorf("x: %w", context.DeadlineExceeded), want: "context_deadlineexceedederror"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
