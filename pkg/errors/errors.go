// Package errors defines the sentinel errors shared across the service and
// maps them onto HTTP status codes at the boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput marks a request the caller must fix (e.g. empty query).
	ErrInvalidInput = errors.New("invalid input")
	// ErrEncoding means the embedding function could not produce a vector.
	ErrEncoding = errors.New("encoding failed")
	// ErrClassification means the topic classifier failed or returned malformed output.
	ErrClassification = errors.New("classification failed")
	// ErrRegistryInconsistency means a topic name produced by the classifier
	// is unknown to the registry. It is a configuration defect.
	ErrRegistryInconsistency = errors.New("topic registry inconsistency")
	ErrUnavailable           = errors.New("dependency unavailable")
	ErrInternal              = errors.New("internal error")
	ErrTimeout               = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode picks the response status for err. AppError status codes win
// over sentinel matching, and an unavailable dependency wins over the stage
// error that wraps it.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrEncoding):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a caller. Internal
// failures are not described beyond their class.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid input"
	case errors.Is(err, ErrUnavailable):
		return "a dependency is unavailable"
	case errors.Is(err, ErrTimeout):
		return "request timed out"
	case errors.Is(err, ErrEncoding):
		return "query could not be encoded"
	default:
		return "internal error"
	}
}
