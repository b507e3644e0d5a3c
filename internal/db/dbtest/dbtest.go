// Package dbtest connects store tests to a disposable PostgreSQL database.
// Tests skip unless DALIL_TEST_DSN is set.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"go-dalil/internal/config"
	"go-dalil/internal/db"
)

const EnvDSN = "DALIL_TEST_DSN"

// Open returns a pool on the migrated test database, closed at cleanup.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("skipping: %s not set", EnvDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.NewDatabase(ctx, config.DatabaseConfig{DSN: dsn, MaxConns: 16})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(database.Close)

	require.NoError(t, database.AutoMigrate(ctx))
	return database.Pool
}

// Profile inserts a profile for a fresh platform user and returns its id.
func Profile(t testing.TB, pool *pgxpool.Pool, fullName string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(),
		`INSERT INTO profiles (user_id, full_name) VALUES ($1, $2) RETURNING id`,
		uuid.NewString(), fullName,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
