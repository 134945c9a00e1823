// Package dataapi implements a resilient client for the apex data API:
// credential masking and OAuth2 token lifecycle, rate-limited request
// dispatch with retry, transparent resolution of blob-storage link
// indirection, and bulk chunk downloads.
package dataapi

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client's expected failure modes.
// Use errors.Is(err, dataapi.ErrUnavailable) to check.
var (
	// ErrAuthentication means the credential handshake (or a refresh
	// followed by a handshake) was rejected by the token endpoint.
	ErrAuthentication = errors.New("dataapi: authentication failed")

	// ErrRateLimitExhausted means the attempt budget was consumed by
	// repeated 401/429 responses.
	ErrRateLimitExhausted = errors.New("dataapi: rate limit retries exhausted")

	// ErrUnavailable means the service answered 503. Maintenance windows
	// are not retryable; callers should back off entirely.
	ErrUnavailable = errors.New("dataapi: service unavailable")

	// ErrMalformedPayload means the response bytes could not be understood:
	// an unparseable chunk file, a non-array bulk dataset, or a link that
	// resolved to yet another link.
	ErrMalformedPayload = errors.New("dataapi: malformed payload")
)

// APIError wraps a sentinel error with the HTTP status code, the endpoint
// that produced it, and a truncated response body for debugging.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("dataapi: %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("dataapi: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errBodyLimit bounds how much of a response body is carried in errors
// and logs. Blob-storage error pages can be large.
const errBodyLimit = 512

// truncateBody clips a response body for inclusion in errors and logs.
func truncateBody(body []byte) string {
	if len(body) > errBodyLimit {
		return string(body[:errBodyLimit]) + "..."
	}

	return string(body)
}
