package errors

import (
	"context"
	"errors"
)

// FromRequestError maps an error returned while performing a remote call to an AppError.
// Caller cancellation is reported as Canceled so workers can tell a hard abort apart from
// a dead connection; every other failure (including deadline expiry) is a Transport error.
func FromRequestError(op string, err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeCanceled, op+": canceled")
	}
	return Transport(op, err)
}
