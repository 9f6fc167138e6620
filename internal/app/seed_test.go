package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rostertrack/rostertrack/internal/config"
	syncmocks "github.com/rostertrack/rostertrack/internal/sync/mocks"
)

func TestInitializeTrackedTournaments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       *config.Config
		nilMgr    bool
		setup     func(m *syncmocks.MockManager)
		wantError string
	}{
		{
			name:      "nil config",
			cfg:       nil,
			wantError: "config is required",
		},
		{
			name:      "nil manager",
			cfg:       &config.Config{},
			nilMgr:    true,
			wantError: "sync manager is required",
		},
		{
			name: "no tournaments",
			cfg:  &config.Config{},
		},
		{
			name: "tracks every configured tournament without fetching",
			cfg: &config.Config{Tournaments: []config.TournamentConfig{
				{ID: "1", Name: "Spring Open"},
				{ID: "2"},
			}},
			setup: func(m *syncmocks.MockManager) {
				gomock.InOrder(
					m.EXPECT().Track(gomock.Any(), "1", "Spring Open", false).Return(nil, nil),
					m.EXPECT().Track(gomock.Any(), "2", "", false).Return(nil, nil),
				)
			},
		},
		{
			name: "stops at the first failure",
			cfg: &config.Config{Tournaments: []config.TournamentConfig{
				{ID: "1"},
				{ID: "2"},
			}},
			setup: func(m *syncmocks.MockManager) {
				m.EXPECT().Track(gomock.Any(), "1", "", false).Return(nil, errors.New("database is locked"))
			},
			wantError: "failed to track configured tournament '1'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mock := syncmocks.NewMockManager(ctrl)
			if tt.setup != nil {
				tt.setup(mock)
			}

			var err error
			if tt.nilMgr {
				err = InitializeTrackedTournaments(context.Background(), tt.cfg, nil)
			} else {
				err = InitializeTrackedTournaments(context.Background(), tt.cfg, mock)
			}

			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				return
			}
			require.NoError(t, err)
		})
	}
}
