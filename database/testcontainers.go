package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type nopLogger struct{}

func (*nopLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

var (
	dbName = "testdb"
	dbUser = "testuser"
	dbPass = "testpass"
)

// SetupTestDBContainer starts a Postgres container and returns its connection
// string. Migrations are not applied.
func SetupTestDBContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}

	postgresContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cleanupFunc := func() {
		tc.CleanupContainer(t, postgresContainer)
	}

	return connStr, cleanupFunc
}

// SetupTestDB starts a Postgres container with the schema applied.
// The down migration is exercised once on the way.
func SetupTestDB(t *testing.T) (string, func()) {
	t.Helper()

	connStr, cleanupFunc := SetupTestDBContainer(t, context.Background())

	require.NoError(t, MigrateUp(connStr))
	require.NoError(t, MigrateDown(connStr, 1))
	require.NoError(t, MigrateUp(connStr))

	return connStr, cleanupFunc
}
