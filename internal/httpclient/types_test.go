package httpclient_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rostertrack/rostertrack/internal/httpclient"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		url           string
		message       string
		expectedError string
		temporary     bool
	}{
		{
			name:          "not found",
			statusCode:    404,
			url:           "https://api.cuescore.com/tournament/?id=1",
			message:       "404 Not Found",
			expectedError: "HTTP 404 for URL https://api.cuescore.com/tournament/?id=1: 404 Not Found",
		},
		{
			name:          "server error",
			statusCode:    502,
			url:           "http://example.com",
			message:       "502 Bad Gateway",
			expectedError: "HTTP 502 for URL http://example.com: 502 Bad Gateway",
			temporary:     true,
		},
		{
			name:          "rate limited",
			statusCode:    429,
			url:           "http://example.com",
			message:       "",
			expectedError: "HTTP 429 for URL http://example.com: ",
			temporary:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := httpclient.NewHTTPError(tt.statusCode, tt.url, tt.message)
			assert.EqualError(t, err, tt.expectedError)

			var httpErr *httpclient.HTTPError
			assert.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.temporary, httpErr.Temporary())
		})
	}
}

func TestIsPermanent_Wrapped(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("fetch roster: %w", httpclient.NewHTTPError(403, "http://x", "403 Forbidden"))
	assert.True(t, httpclient.IsPermanent(wrapped))
	assert.False(t, httpclient.IsPermanent(errors.New("connection reset")))
	assert.False(t, httpclient.IsPermanent(nil))
}
