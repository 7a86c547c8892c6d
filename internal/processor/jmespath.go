// Package processor provides the built-in job processing function used by the
// mammoth binary: a JMESPath predicate evaluated against each job.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
)

// DefaultExpression accepts every job.
const DefaultExpression = "`true`"

// Predicate evaluates a JMESPath expression against a job document of the form
//
//	{"request_id", "job_id", "source_ip", "user_agent", "method",
//	 "request_url", "custom_value", "payload": {...}}
//
// A truthy result completes the job; a falsy one (false, null, "", [], {}) fails it.
type Predicate struct {
	expr   string
	logger *slog.Logger
}

// NewPredicate validates expr (DefaultExpression when blank).
func NewPredicate(expr string, logger *slog.Logger) (*Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultExpression
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, apperrors.ValidationField("PROCESSOR_EXPRESSION", fmt.Sprintf("invalid JMESPath expression %q: %v", expr, err))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Predicate{expr: expr, logger: logger}, nil
}

// Expression returns the compiled expression text.
func (p *Predicate) Expression() string { return p.expr }

// Process matches jobrunner.ProcessFunc.
func (p *Predicate) Process(ctx context.Context, job *model.JobRecord) error {
	result, err := jmespath.Search(p.expr, Document(job))
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", p.expr, err)
	}
	if !truthy(result) {
		return fmt.Errorf("expression %s evaluated to %v", p.expr, result)
	}
	p.logger.DebugContext(ctx, "job accepted", "job_id", job.JobID(), "result", result)
	return nil
}

// Document renders a job as the generic JSON-like value the expression runs against.
func Document(job *model.JobRecord) map[string]any {
	doc := map[string]any{
		"request_id":  job.RequestID(),
		"job_id":      job.JobID(),
		"source_ip":   job.SourceIP(),
		"user_agent":  job.UserAgent(),
		"method":      job.Method(),
		"request_url": job.RequestURL(),
		"payload":     job.Payload(),
	}
	if cv, ok := job.CustomValue(); ok {
		doc["custom_value"] = cv
	} else {
		doc["custom_value"] = nil
	}
	return doc
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
