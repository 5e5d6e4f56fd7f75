package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/pkg/anthropic"
	"github.com/sells-group/profile-enricher/pkg/firecrawl"
	"github.com/sells-group/profile-enricher/pkg/jina"
	"github.com/sells-group/profile-enricher/pkg/perplexity"
)

// ClassifyHTTPStatus maps an upstream HTTP status to an error kind.
func ClassifyHTTPStatus(code int) model.ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return model.KindRateLimit
	case code == http.StatusUnauthorized:
		return model.KindAuthentication
	case code == http.StatusForbidden:
		return model.KindAuthorization
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return model.KindTimeout
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity || code == http.StatusNotFound:
		return model.KindValidation
	case code == http.StatusPaymentRequired:
		return model.KindQuotaExceeded
	case code >= 500:
		return model.KindProvider
	default:
		return model.KindUnknown
	}
}

// ClassifyError converts any error returned by a backend into a ScrapeError,
// extracting status codes from the client packages' APIError types.
func ClassifyError(err error) *model.ScrapeError {
	if err == nil {
		return nil
	}

	var se *model.ScrapeError
	if errors.As(err, &se) {
		return se
	}

	if code, ok := statusOf(err); ok {
		return model.NewScrapeError(ClassifyHTTPStatus(code), fmt.Sprintf("upstream returned HTTP %d", code), err).WithStatus(code)
	}

	if errors.Is(err, context.Canceled) {
		return model.NewScrapeError(model.KindUnknown, "request cancelled", err)
	}

	kind := model.KindOf(err)
	if kind == model.KindUnknown {
		kind = model.KindProvider
	}
	return model.NewScrapeError(kind, err.Error(), err)
}

func statusOf(err error) (int, bool) {
	var (
		jErr *jina.APIError
		fErr *firecrawl.APIError
		pErr *perplexity.APIError
		aErr *anthropic.APIError
		hErr *StatusError
	)
	switch {
	case errors.As(err, &jErr):
		return jErr.StatusCode, true
	case errors.As(err, &fErr):
		return fErr.StatusCode, true
	case errors.As(err, &pErr):
		return pErr.StatusCode, true
	case errors.As(err, &aErr):
		return aErr.StatusCode, true
	case errors.As(err, &hErr):
		return hErr.StatusCode, true
	}
	return 0, false
}

// StatusError reports a non-2xx response from a directly fetched page.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}
