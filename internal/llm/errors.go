package llm

import (
	"net/http"
	"strings"
)

// ModelError wraps a provider error with HTTP metadata scraped from the SDK
// error text. The SDKs don't expose the response consistently, so this is
// best-effort.
type ModelError struct {
	Err        error
	HTTPStatus int
	RetryAfter string
}

func (e *ModelError) Error() string {
	return e.Err.Error()
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsRateLimit reports whether the provider rejected the call with 429.
func (e *ModelError) IsRateLimit() bool {
	return e.HTTPStatus == http.StatusTooManyRequests
}

func wrapModelError(err error) error {
	if err == nil {
		return nil
	}
	status, retryAfter := extractErrorMetadata(err)
	return &ModelError{Err: err, HTTPStatus: status, RetryAfter: retryAfter}
}

// extractErrorMetadata pulls an HTTP status code and Retry-After value out of
// an SDK error message.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	var retryAfter string

	switch {
	case strings.Contains(errStr, "429"):
		httpStatus = http.StatusTooManyRequests
	case strings.Contains(errStr, "500"):
		httpStatus = http.StatusInternalServerError
	case strings.Contains(errStr, "502"):
		httpStatus = http.StatusBadGateway
	case strings.Contains(errStr, "503"):
		httpStatus = http.StatusServiceUnavailable
	case strings.Contains(errStr, "504"):
		httpStatus = http.StatusGatewayTimeout
	case strings.Contains(errStr, "401"):
		httpStatus = http.StatusUnauthorized
	case strings.Contains(errStr, "403"):
		httpStatus = http.StatusForbidden
	case strings.Contains(errStr, "402"):
		httpStatus = http.StatusPaymentRequired
	case strings.Contains(errStr, "400"):
		httpStatus = http.StatusBadRequest
	}

	if idx := strings.Index(strings.ToLower(errStr), "retry-after"); idx != -1 {
		remaining := errStr[idx+len("retry-after"):]
		parts := strings.Fields(strings.TrimLeft(remaining, ": "))
		if len(parts) > 0 {
			retryAfter = parts[0]
		}
	}

	return httpStatus, retryAfter
}
