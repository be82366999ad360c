// Package errors provides the error taxonomy of the dataflow engine.
// Every failure is an AppError carrying a machine-readable code; the code
// decides whether the failure is recoverable (logged, processing continues),
// unrecoverable (cascading forced shutdown) or absorbed (double shutdown).
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Recoverable indicates processing may continue after logging the error.
	Recoverable bool `json:"recoverable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, errors.TransmitClosed("")) matches any transmit failure.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Severity returns the handling tier of the error.
func (e *AppError) Severity() Severity {
	return SeverityOf(e.Code)
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic severity detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Recoverable: IsRecoverableCode(code),
	}
}

// --- Dataflow constructors ---

// TransmitClosed is returned by a subscriber that no longer accepts the item.
func TransmitClosed(subscriber string) *AppError {
	return &AppError{
		Code: ErrCodeTransmitClosed, Message: fmt.Sprintf("subscriber %s is closed for transmit", subscriber),
		Details: map[string]any{"subscriber": subscriber},
	}
}

// SubscriberKilled is returned to callers blocked on a force-shut subscriber.
func SubscriberKilled(subscriber string) *AppError {
	return &AppError{
		Code: ErrCodeSubscriberKilled, Message: fmt.Sprintf("subscriber %s was killed", subscriber),
		Details: map[string]any{"subscriber": subscriber},
	}
}

// PeerClosing reports an operation against a gracefully closing peer.
func PeerClosing(peer string) *AppError {
	return &AppError{
		Code: ErrCodePeerClosing, Message: fmt.Sprintf("%s is closing", peer),
		Recoverable: true, Details: map[string]any{"peer": peer},
	}
}

// UnexpectedUnit wraps a structural failure of a unit's process.
func UnexpectedUnit(unit string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeUnexpectedUnit, Message: fmt.Sprintf("unit %s failed unexpectedly", unit),
		Details: map[string]any{"unit": unit}, Cause: cause,
	}
}

// Structural reports a broken graph.
func Structural(reason string) *AppError {
	return &AppError{Code: ErrCodeStructural, Message: reason}
}

// PipelineKilled is returned by a run that was killed before completion.
func PipelineKilled(pipeline string) *AppError {
	return &AppError{
		Code: ErrCodePipelineKilled, Message: fmt.Sprintf("pipeline %s was killed", pipeline),
		Details: map[string]any{"pipeline": pipeline},
	}
}

// MissingKeys reports a package lacking required keys.
func MissingKeys(step string, missing []string) *AppError {
	return &AppError{
		Code: ErrCodeMissingKeys, Message: fmt.Sprintf("%s is missing required keys: %s", step, strings.Join(missing, ", ")),
		Recoverable: true, Details: map[string]any{"step": step, "missing": missing},
	}
}

// InvalidState reports an operation attempted in the wrong lifecycle state.
func InvalidState(component, state, op string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidState, Message: fmt.Sprintf("cannot %s %s in state %s", op, component, state),
		Details: map[string]any{"component": component, "state": state, "operation": op},
	}
}

// AlreadyShutdown reports a repeated shutdown. Callers absorb it.
func AlreadyShutdown(component string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyShutdown, Message: fmt.Sprintf("%s is already shut down", component),
		Details: map[string]any{"component": component},
	}
}

// ProcessFailed reports an external step that exited unsuccessfully.
func ProcessFailed(step string, exitCode int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeProcessFailed, Message: fmt.Sprintf("process %s failed with exit code %d", step, exitCode),
		Details: map[string]any{"step": step, "exit_code": exitCode}, Cause: cause,
	}
}

// Timeout reports an operation that ran past its deadline.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		Recoverable: true, Details: map[string]any{"operation": operation},
	}
}

// ServiceUnavailable reports a step that is temporarily rejected.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("%s is temporarily unavailable", service),
		Recoverable: true, Details: map[string]any{"service": service},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource),
		Details: details,
	}
}

// Internal creates a new AppError for an unexpected internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		Cause: cause,
	}
}

// --- Inspection ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Wrap converts any error into an AppError. Nil stays nil and AppErrors in the
// chain are returned unchanged; anything else becomes an Internal error.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsRecoverable reports whether err may be logged and skipped.
// Plain errors are unrecoverable.
func IsRecoverable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && (appErr.Recoverable || appErr.Severity() == SeverityRecoverable)
}

// IsAlreadyShutdown reports whether err is a repeated-shutdown error.
func IsAlreadyShutdown(err error) bool {
	return HasCode(err, ErrCodeAlreadyShutdown)
}

// Join combines multiple errors, skipping nils. It returns nil when all are nil.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
