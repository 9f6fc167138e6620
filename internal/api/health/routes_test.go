package health_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rostertrack/rostertrack/internal/api/health"
	"github.com/rostertrack/rostertrack/internal/storage/mocks"
)

func TestRouter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		pingErr    error
		expectPing bool
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{
			name:       "health endpoint",
			path:       "/health",
			wantStatus: http.StatusOK,
			wantKey:    "status",
			wantValue:  "healthy",
		},
		{
			name:       "readiness endpoint - ready",
			path:       "/readiness",
			expectPing: true,
			wantStatus: http.StatusOK,
			wantKey:    "status",
			wantValue:  "ready",
		},
		{
			name:       "readiness endpoint - store down",
			path:       "/readiness",
			expectPing: true,
			pingErr:    errors.New("database is closed"),
			wantStatus: http.StatusServiceUnavailable,
			wantKey:    "error",
			wantValue:  "store not ready: database is closed",
		},
		{
			name:       "version endpoint",
			path:       "/version",
			wantStatus: http.StatusOK,
			wantKey:    "go_version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			store := mocks.NewMockStore(ctrl)
			if tt.expectPing {
				store.EXPECT().Ping(gomock.Any()).Return(tt.pingErr)
			}

			rr := httptest.NewRecorder()
			health.Router(store).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Contains(t, body, tt.wantKey)
			if tt.wantValue != "" {
				assert.Equal(t, tt.wantValue, body[tt.wantKey])
			}
		})
	}
}
