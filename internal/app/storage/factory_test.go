package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostertrack/rostertrack/internal/config"
	"github.com/rostertrack/rostertrack/internal/storage/memory"
	"github.com/rostertrack/rostertrack/internal/storage/sqlite"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      *config.Config
		wantType any
		errMsg   string
	}{
		{
			name:   "nil config returns error",
			cfg:    nil,
			errMsg: "config cannot be nil",
		},
		{
			name:     "memory",
			cfg:      &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeMemory}},
			wantType: &memory.Store{},
		},
		{
			name: "sqlite",
			cfg: &config.Config{Storage: config.StorageConfig{
				Type:   config.StorageTypeSQLite,
				SQLite: &config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")},
			}},
			wantType: &sqlite.Store{},
		},
		{
			name:   "postgres without database config",
			cfg:    &config.Config{Storage: config.StorageConfig{Type: config.StorageTypePostgres}},
			errMsg: "database configuration is required",
		},
		{
			name:   "unknown type",
			cfg:    &config.Config{Storage: config.StorageConfig{Type: "etcd"}},
			errMsg: "unknown storage type: etcd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, err := NewStore(context.Background(), tt.cfg)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}

			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			assert.IsType(t, tt.wantType, store)
		})
	}
}

func TestBuildPoolConfig(t *testing.T) {
	t.Setenv(config.PasswordEnvVar, "secret")

	cfg := &config.DatabaseConfig{
		Host:            "db.internal",
		Port:            5433,
		User:            "tracker",
		Database:        "roster",
		SSLMode:         "disable",
		MaxOpenConns:    12,
		MaxIdleConns:    2,
		ConnMaxLifetime: "30m",
	}

	poolConfig, err := buildPoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(12), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
	assert.Equal(t, 30*time.Minute, poolConfig.MaxConnLifetime)
	assert.Equal(t, "db.internal", poolConfig.ConnConfig.Host)
	assert.Equal(t, uint16(5433), poolConfig.ConnConfig.Port)
	assert.Equal(t, "secret", poolConfig.ConnConfig.Password)

	cfg.ConnMaxLifetime = "forever"
	_, err = buildPoolConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connMaxLifetime")
}
