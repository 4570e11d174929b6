package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies an upstream failure into the closed set of error codes
// the API reports to clients.
type Kind string

const (
	KindMissingAPIKey Kind = "missing_api_key"
	KindInvalidAPIKey Kind = "invalid_api_key"
	KindRateLimited   Kind = "rate_limited"
	KindOverloaded    Kind = "overloaded"
	KindNetwork       Kind = "network"
	KindUnknown       Kind = "unknown"
)

// ErrMissingAPIKey is returned when no API key is configured at all. It is
// detected before any request leaves the process.
var ErrMissingAPIKey = errors.New("llm: api key not configured")

// ClassifiedError pairs an upstream failure with its classification and the
// HTTP status the API surface should report.
type ClassifiedError struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *ClassifiedError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify maps an error from the OpenAI-compatible client onto a Kind and
// a reportable status. Failures are never retried here; the caller decides
// what to do with the classification.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrMissingAPIKey) {
		return &ClassifiedError{Kind: KindMissingAPIKey, Status: http.StatusServiceUnavailable, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode > 0 {
			return classifyStatus(reqErr.HTTPStatusCode, err)
		}
		return &ClassifiedError{Kind: KindNetwork, Status: http.StatusServiceUnavailable, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Kind: KindNetwork, Status: http.StatusServiceUnavailable, Err: err}
	}

	return &ClassifiedError{Kind: KindUnknown, Status: http.StatusInternalServerError, Err: err}
}

func classifyStatus(status int, err error) *ClassifiedError {
	switch {
	case status == http.StatusUnauthorized:
		return &ClassifiedError{Kind: KindInvalidAPIKey, Status: status, Err: err}
	case status == http.StatusTooManyRequests:
		return &ClassifiedError{Kind: KindRateLimited, Status: status, Err: err}
	case status == 529 || status == http.StatusInternalServerError:
		return &ClassifiedError{Kind: KindOverloaded, Status: status, Err: err}
	case status >= 500:
		return &ClassifiedError{Kind: KindOverloaded, Status: status, Err: err}
	default:
		return &ClassifiedError{Kind: KindUnknown, Status: status, Err: err}
	}
}
