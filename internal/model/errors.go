package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a scrape failure.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindRateLimit      ErrorKind = "rate_limit"
	KindValidation     ErrorKind = "validation"
	KindExtraction     ErrorKind = "extraction"
	KindProvider       ErrorKind = "provider"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindConfiguration  ErrorKind = "configuration"
	KindBudgetExceeded ErrorKind = "budget_exceeded"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindUnknown        ErrorKind = "unknown"
)

// ScrapeError is the typed error carried on a failed ScrapeResponse.
type ScrapeError struct {
	Kind       ErrorKind `json:"type"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Err        error     `json:"-"`
}

// NewScrapeError creates a ScrapeError of the given kind.
func NewScrapeError(kind ErrorKind, message string, err error) *ScrapeError {
	return &ScrapeError{Kind: kind, Message: message, Err: err}
}

func (e *ScrapeError) Error() string {
	prefix := string(e.Kind)
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// WithProvider sets the provider name and returns the error.
func (e *ScrapeError) WithProvider(name string) *ScrapeError {
	e.Provider = name
	return e
}

// WithStatus sets the upstream HTTP status code and returns the error.
func (e *ScrapeError) WithStatus(code int) *ScrapeError {
	e.StatusCode = code
	return e
}

// KindOf maps any error to an ErrorKind. ScrapeErrors keep their own kind;
// context deadlines and network timeouts map to timeout, other net errors to network.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}
	return KindUnknown
}

// AsScrapeError returns err as a ScrapeError, classifying it when it is not one already.
func AsScrapeError(err error) *ScrapeError {
	if err == nil {
		return nil
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(KindOf(err), err.Error(), err)
}
