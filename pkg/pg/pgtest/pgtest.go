// Package pgtest starts a throwaway PostgreSQL container with the service
// schema applied, for integration tests.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dmitrymomot/entitle/migrations"
	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/pg"
)

// New returns a migrated pool backed by a fresh container. The test is
// skipped in -short mode or when ENTITLE_SKIP_DOCKER is set.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() || os.Getenv("ENTITLE_SKIP_DOCKER") != "" {
		t.Skip("skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("entitle"),
		postgres.WithUsername("entitle"),
		postgres.WithPassword("entitle"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pg.Config{
		ConnectionString:  dsn,
		MaxOpenConns:      10,
		MaxIdleConns:      1,
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   time.Minute,
		MaxConnLifetime:   time.Hour,
		RetryAttempts:     5,
		RetryInterval:     500 * time.Millisecond,
		MigrationsTable:   "schema_migrations",
	}

	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, migrations.FS, cfg, logger.Discard()))

	return pool
}
