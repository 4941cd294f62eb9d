package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sells-group/tender-scout/internal/model"
)

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"configuration", &ConfigurationError{Err: errors.New("missing credentials")}, true},
		{"authentication", &AuthenticationError{Err: errors.New("bad login")}, true},
		{"wrapped authentication", fmt.Errorf("login step: %w", &AuthenticationError{Err: errors.New("bad login")}), true},
		{"extraction", &ExtractionError{Context: "row 3", Err: errors.New("missing title")}, false},
		{"persistence", &PersistenceError{Key: "ungm|123", Err: errors.New("disk full")}, false},
		{"rate limit", &RateLimitError{Err: errors.New("429")}, false},
		{"plain", errors.New("whatever"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFatal(tc.err); got != tc.fatal {
				t.Errorf("IsFatal(%v) = %v, want %v", tc.err, got, tc.fatal)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want model.ErrorType
	}{
		{&ConfigurationError{Err: errors.New("x")}, model.ErrConfiguration},
		{&AuthenticationError{Err: errors.New("x")}, model.ErrAuthentication},
		{&NavigationTimeoutError{URL: "https://a", Err: errors.New("x")}, model.ErrNavigationTimeout},
		{&PersistenceError{Key: "k", Err: errors.New("x")}, model.ErrPersistence},
		{&RateLimitError{Err: errors.New("x")}, model.ErrRateLimit},
		{&ExtractionError{Context: "c", Err: errors.New("x")}, model.ErrExtraction},
		{errors.New("unknown"), model.ErrExtraction},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(&AuthenticationError{Err: errors.New("denied")}) {
		t.Error("authentication errors must not be retried")
	}
	if !IsRetryable(&RateLimitError{Err: errors.New("slow down")}) {
		t.Error("rate limit errors must be retried")
	}
	if !IsRetryable(&NavigationTimeoutError{Err: errors.New("timeout")}) {
		t.Error("navigation timeouts must be retried")
	}
	if !IsRetryable(NewTransientError(errors.New("503"), 503)) {
		t.Error("transient errors must be retried")
	}
	if IsRetryable(errors.New("parse failure")) {
		t.Error("unclassified errors must not be retried")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestIsTransient_NetworkPatterns(t *testing.T) {
	cases := []struct {
		msg       string
		transient bool
	}{
		{"dial tcp: i/o timeout", true},
		{"read: connection reset by peer", true},
		{"lookup example.org: no such host", true},
		{"context deadline exceeded", true},
		{"element not found: #loginForm", false},
	}
	for _, tc := range cases {
		if got := IsTransient(errors.New(tc.msg)); got != tc.transient {
			t.Errorf("IsTransient(%q) = %v, want %v", tc.msg, got, tc.transient)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be non-transient", code)
		}
	}
}

func TestTaxonomyUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	wrapped := &NavigationTimeoutError{URL: "https://a", Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}
