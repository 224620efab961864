// Package apperror is the agent's typed error layer. Every failure that
// crosses a component boundary is an *AppError carrying a stable Code, so
// the monitor's circuit breaker, the executor's per-leg records, and the
// logs all classify failures the same way.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AppError is a coded error with optional context and cause.
type AppError struct {
	Code       Code      `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"statusCode"`
	Context    string    `json:"context,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	cause      error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is/As chains.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches two AppErrors by Code, so call sites can compare against a
// sentinel without caring about context or cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Option mutates a new AppError.
type Option func(*AppError)

// WithMessage overrides the code's default message.
func WithMessage(msg string) Option {
	return func(e *AppError) { e.Message = msg }
}

// WithContext attaches call-site detail (venue, token, operation).
func WithContext(context string) Option {
	return func(e *AppError) { e.Context = context }
}

// WithStatusCode overrides the HTTP status the code maps to by default.
func WithStatusCode(status int) Option {
	return func(e *AppError) { e.StatusCode = status }
}

// WithCause wraps an underlying error.
func WithCause(cause error) Option {
	return func(e *AppError) { e.cause = cause }
}

// New builds an AppError for code, applying opts.
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:       code,
		Message:    messages[code],
		StatusCode: statusFor(code),
		Timestamp:  time.Now(),
	}
	for _, opt := range opts {
		opt(err)
	}
	if err.Message == "" {
		err.Message = string(code)
	}
	return err
}

// Validation builds a bad-input error.
func Validation(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusBadRequest))
}

// NotFound builds a missing-resource error.
func NotFound(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusNotFound))
}

// Unauthorized builds a venue-auth error (spec's AuthError class).
func Unauthorized(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusUnauthorized))
}

// Internal builds an in-process failure wrapping cause.
func Internal(code Code, context string, cause error) *AppError {
	return New(code, WithContext(context), WithCause(cause), WithStatusCode(http.StatusInternalServerError))
}

// External builds a venue/dependency failure wrapping cause.
func External(code Code, context string, cause error) *AppError {
	return New(code, WithContext(context), WithCause(cause), WithStatusCode(http.StatusServiceUnavailable))
}

// Wrap coerces err into an AppError. An existing AppError passes through,
// gaining context if it had none.
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if context != "" && appErr.Context == "" {
			appErr.Context = context
		}
		return appErr
	}
	return Internal(code, context, err)
}

// IsAppError reports whether err carries an AppError anywhere in its chain.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode extracts the Code from err, or CodeUnknownError.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// statusFor maps a code family onto the HTTP status the venues use for it,
// which keeps retry/backoff decisions uniform whether a failure came off
// the wire or was raised locally.
func statusFor(code Code) int {
	s := string(code)
	switch {
	case strings.Contains(s, "AUTH_FAILED"), strings.Contains(s, "UNAUTHORIZED"):
		return http.StatusUnauthorized
	case strings.Contains(s, "FORBIDDEN"):
		return http.StatusForbidden
	case strings.Contains(s, "NOT_FOUND"):
		return http.StatusNotFound
	case strings.Contains(s, "RATE_LIMIT"), strings.Contains(s, "RATE_LIMITED"):
		return http.StatusTooManyRequests
	case strings.Contains(s, "INVALID"), strings.Contains(s, "MALFORMED"):
		return http.StatusBadRequest
	case strings.Contains(s, "CONNECTION"), strings.Contains(s, "UNREACHABLE"),
		strings.Contains(s, "TIMEOUT"), strings.Contains(s, "UNAVAILABLE"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
