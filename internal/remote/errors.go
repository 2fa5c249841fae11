package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes of the booking backend. The processor and the backend
// share this status vocabulary, so the payment coordinator maps its
// failures through the same sentinels.
//
// ErrConflict is the stale-reservation signal: the referenced hold or
// booking is gone or already consumed. Recover by discarding the
// affected identifier and restarting from the nearest safe step, never
// by retrying the same request.
//
// ErrTransient covers network failures and 5xx: safe to retry without
// discarding any state.
var (
	ErrConflict     = errors.New("remote: conflict")
	ErrValidation   = errors.New("remote: validation")
	ErrForbidden    = errors.New("remote: forbidden")
	ErrNotFound     = errors.New("remote: not found")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrTransient    = errors.New("remote: transient")
)

// APIError carries the HTTP status and the server's message alongside
// the error class, reachable through errors.Is / errors.As.
type APIError struct {
	StatusCode int
	Message    string
	class      error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.class
}

// NewAPIError builds an APIError with its class derived from the
// status code.
func NewAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message, class: classify(status)}
}

func classify(status int) error {
	switch status {
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrTransient
	}
	if status >= 500 {
		return ErrTransient
	}
	return ErrValidation
}

// IsRetryable reports whether the error may be retried as-is, with all
// local state kept.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsConflict reports the stale-reservation signal: the referenced hold
// or slot is gone and local state referencing it must be discarded.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ServerMessage extracts the backend's human-readable message, empty
// when the error did not come from an HTTP response.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
