package formhydrate

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds carried by ClientError.Type. Callers match on this closed set
// instead of probing error values for status fields.
const (
	ErrorTypeInvalidArgument  = "InvalidArgument"
	ErrorTypeBadResponseShape = "BadResponseShape"
	ErrorTypeNetwork          = "Network"
	ErrorTypeTimeout          = "Timeout"
	ErrorTypeCanceled         = "Canceled"
	ErrorTypeHTTP             = "HTTP"
	ErrorTypeCircuitOpen      = "CircuitOpen"
	ErrorTypeRateLimit        = "RateLimit"
	ErrorTypeValidation       = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call pre-flight.
	ErrCircuitOpen = errors.New("formhydrate: circuit open")

	// ErrRateLimited is returned when a request is denied by the rate limiter.
	ErrRateLimited = errors.New("formhydrate: rate limited")
)

// ClientError is the error type for every failure the client surfaces.
type ClientError struct {
	Type       string
	Message    string
	StatusCode int
	Path       string
	Attempt    int
	RetryAfter time.Duration
	RequestID  string
	Cause      error
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Path)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is, and maps the CircuitOpen and
// RateLimit kinds onto their sentinel values.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrCircuitOpen {
		return e.Type == ErrorTypeCircuitOpen
	}
	if target == ErrRateLimited {
		return e.Type == ErrorTypeRateLimit
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// ErrorKind extracts the ClientError kind from err, or "" when err is not a
// ClientError.
func ErrorKind(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return ""
}

// StatusCode extracts the HTTP status from err, or 0 when none was obtained.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

// IsTransient reports whether err represents a failure that might succeed on
// retry under the default retriable status set. Validation, shape and
// cancellation errors are never transient.
func IsTransient(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}

	switch clientErr.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	case ErrorTypeHTTP:
		return defaultRetriableStatus[clientErr.StatusCode]
	default:
		return false
	}
}
