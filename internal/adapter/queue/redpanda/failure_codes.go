package redpanda

import (
	"context"
	"errors"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

// Failure codes reported on completed analyses. They match the error codes
// of the HTTP API.
const (
	CodeOK               = "OK"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeConfiguration    = "CONFIGURATION"
	CodeExtractionFailed = "EXTRACTION_FAILED"
	CodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	CodeUpstreamLimit    = "UPSTREAM_RATE_LIMIT"
	CodeInternal         = "INTERNAL"
)

// classifyFailure maps an analysis error to a stable code for metrics and
// dead-letter records.
func classifyFailure(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, domain.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, domain.ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return CodeUpstreamLimit
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeUpstreamTimeout
	case errors.Is(err, domain.ErrExtractionFailed):
		return CodeExtractionFailed
	default:
		return CodeInternal
	}
}

// retryable reports whether another attempt may succeed. Extraction failures
// caused by a flaky upstream are retried; malformed requests and missing
// configuration are not.
func retryable(code string) bool {
	switch code {
	case CodeUpstreamTimeout, CodeUpstreamLimit, CodeExtractionFailed, CodeInternal:
		return true
	}
	return false
}
