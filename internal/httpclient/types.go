package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents a non-200 response from the upstream API
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// Temporary reports whether retrying the same request may succeed
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// IsPermanent reports whether err is an HTTP error that retrying will not fix.
// Transport errors are never permanent.
func IsPermanent(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return !httpErr.Temporary()
	}
	return false
}
