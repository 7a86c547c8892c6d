package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeTransport indicates a connection or timeout failure talking to the dispatcher.
	ErrCodeTransport ErrorCode = "transport"
	// ErrCodeDispatcher indicates the dispatcher answered with a non-success status.
	ErrCodeDispatcher ErrorCode = "dispatcher"
	// ErrCodeMalformedPayload indicates a job payload could not be parsed as structured data.
	ErrCodeMalformedPayload ErrorCode = "malformed_payload"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data or configuration.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// JobID identifies the job the error relates to (optional)
	JobID string
	// StatusCode is the HTTP status returned by the dispatcher (dispatcher errors only)
	StatusCode int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Transport wraps a connection/timeout failure for the named remote operation.
func Transport(op string, err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    ErrCodeTransport,
		Message: op + ": transport failure",
		Cause:   err,
	}
}

// Dispatcher creates an error for a non-success dispatcher response.
func Dispatcher(op string, statusCode int, message string) *AppError {
	msg := op + ": dispatcher rejected request"
	if message != "" {
		msg += ": " + message
	}
	return &AppError{
		Code:       ErrCodeDispatcher,
		Message:    msg,
		StatusCode: statusCode,
	}
}

// MalformedPayload creates an error for a job whose payload could not be parsed.
func MalformedPayload(jobID string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeMalformedPayload,
		Message: "malformed payload",
		Cause:   cause,
		JobID:   jobID,
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsTransport checks if an error is a Transport error.
func IsTransport(err error) bool {
	return isCode(err, ErrCodeTransport)
}

// IsDispatcher checks if an error is a Dispatcher error.
func IsDispatcher(err error) bool {
	return isCode(err, ErrCodeDispatcher)
}

// IsMalformedPayload checks if an error is a MalformedPayload error.
func IsMalformedPayload(err error) bool {
	return isCode(err, ErrCodeMalformedPayload)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// IsRecoverable reports whether a worker may log err and move on to its next iteration.
// Transport, dispatcher, malformed payload, timeout and cancellation errors are per-job
// conditions; anything else is treated as a programming or configuration fault.
func IsRecoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeTransport, ErrCodeDispatcher, ErrCodeMalformedPayload, ErrCodeTimeout, ErrCodeCanceled:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether repeating the same request could succeed:
// transport failures, throttling (429) and dispatcher-side 5xx responses.
func IsRetryable(err error) bool {
	if IsTransport(err) || IsTimeout(err) {
		return true
	}
	if !IsDispatcher(err) {
		return false
	}
	code := StatusCode(err)
	return code == 429 || code >= 500
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// StatusCode returns the dispatcher HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}

// JobID returns the job id carried by err, or empty string.
func JobID(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.JobID
	}
	return ""
}
