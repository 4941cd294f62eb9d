// Package resilience provides the retry policy and the error taxonomy used
// around every I/O step of the scraping pipeline.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/tender-scout/internal/model"
)

// ConfigurationError is fatal and fails a session before it starts
// (missing credentials, empty keyword list, unknown source).
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// AuthenticationError is fatal and aborts the session (invalid credentials
// or an unexpected post-login page).
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string { return "authentication: " + e.Err.Error() }
func (e *AuthenticationError) Unwrap() error { return e.Err }

// NavigationTimeoutError marks a timed-out page navigation or element wait.
// Retryable; escalates only after the retry budget is exhausted.
type NavigationTimeoutError struct {
	URL string
	Err error
}

func (e *NavigationTimeoutError) Error() string { return "navigation timeout: " + e.Err.Error() }
func (e *NavigationTimeoutError) Unwrap() error { return e.Err }

// ExtractionError is non-fatal and scoped to a single record; the page
// continues.
type ExtractionError struct {
	Context string
	Err     error
}

func (e *ExtractionError) Error() string { return "extraction: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError is non-fatal and scoped to a single record; the next
// record continues.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string { return "persistence: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// RateLimitError is an explicit throttling signal from the site. It triggers
// backoff and retry, never immediate failure.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx,
// network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsFatal reports whether an error belongs to the session-aborting classes:
// ConfigurationError and AuthenticationError. Everything else is accumulated
// into the session's error list and the session continues.
func IsFatal(err error) bool {
	var ce *ConfigurationError
	var ae *AuthenticationError
	return errors.As(err, &ce) || errors.As(err, &ae)
}

// Classify maps an error into the session error taxonomy for logging into a
// session's error list. Unrecognized errors are treated as extraction-level.
func Classify(err error) model.ErrorType {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return model.ErrConfiguration
	}
	var ae *AuthenticationError
	if errors.As(err, &ae) {
		return model.ErrAuthentication
	}
	var ne *NavigationTimeoutError
	if errors.As(err, &ne) {
		return model.ErrNavigationTimeout
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return model.ErrPersistence
	}
	var re *RateLimitError
	if errors.As(err, &re) {
		return model.ErrRateLimit
	}
	return model.ErrExtraction
}

// IsRetryable reports whether an error is worth retrying under the backoff
// policy: explicit rate-limit signals, navigation timeouts, and anything
// transient at the network level. Fatal classes are never retryable.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	var re *RateLimitError
	if errors.As(err, &re) {
		return true
	}
	var ne *NavigationTimeoutError
	if errors.As(err, &ne) {
		return true
	}
	return IsTransient(err)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network error patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients and the
	// browser driver.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"context deadline exceeded",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
