// Package errors derives low-cardinality error labels for metrics and notifications.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/mammoth/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics and logs.
// Application errors are labelled by code ("transport", "malformed_payload"); dispatcher
// rejections additionally carry their status family ("dispatcher_4xx", "dispatcher_5xx").
// Other errors fall back to the innermost concrete type name in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if code := apperrors.GetCode(err); code != "" {
		if code == apperrors.ErrCodeDispatcher {
			return dispatcherClass(apperrors.StatusCode(err))
		}
		return string(code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

func dispatcherClass(status int) string {
	switch {
	case status == 429:
		return "dispatcher_throttled"
	case status >= 500:
		return "dispatcher_5xx"
	case status >= 400:
		return "dispatcher_4xx"
	default:
		return "dispatcher"
	}
}
