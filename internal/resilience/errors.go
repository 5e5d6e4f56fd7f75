package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/profile-enricher/internal/model"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsRetriable decides whether a failed provider attempt may be retried.
// Scrape errors are retriable when their kind is network, timeout or
// rate_limit, or when they carry a transient HTTP status. Every other kind is
// terminal. Errors that are not scrape errors fall back to IsTransient.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	var se *model.ScrapeError
	if errors.As(err, &se) {
		switch se.Kind {
		case model.KindNetwork, model.KindTimeout, model.KindRateLimit:
			return true
		case model.KindProvider, model.KindUnknown:
			return IsRetriableStatus(se.StatusCode)
		default:
			return false
		}
	}
	return IsTransient(err)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
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

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetriableStatus returns true for the HTTP status codes a provider attempt
// is retried on.
func IsRetriableStatus(statusCode int) bool {
	switch statusCode {
	case 429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
