package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/config"
	"github.com/mayura26/strategy-analyser-sub000/internal/db"
)

// setupTestDB creates a test database connection pool for integration tests.
// The schema is created if missing. If TEST_DATABASE_URL is not set, the test is skipped.
func setupTestDB(t *testing.T) *db.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pgxPool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to create test database pool: %v", err)
	}
	pool := db.Wrap(pgxPool, zap.NewNop())
	t.Cleanup(pool.Close)

	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}

	return pool
}

// setupTestPoolFromConfig builds a pool the way the server does.
func setupTestPoolFromConfig(t *testing.T) *db.Pool {
	t.Helper()

	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set, skipping integration test")
	}

	cfg := &config.DatabaseConfig{
		Host:               os.Getenv("DB_HOST"),
		Port:               5432,
		User:               os.Getenv("DB_USER"),
		Password:           os.Getenv("DB_PASSWORD"),
		Name:               os.Getenv("DB_NAME"),
		SSLMode:            "disable",
		MaxConnections:     4,
		MaxIdleConnections: 1,
		ConnMaxLifetime:    "1h",
	}

	pool, err := db.NewPool(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create test database pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// truncateTables truncates all test tables to ensure a clean state.
func truncateTables(t *testing.T, pool *db.Pool, tables ...string) {
	t.Helper()

	ctx := context.Background()
	for _, table := range tables {
		query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)
		if _, err := pool.Exec(ctx, query); err != nil {
			t.Logf("warning: failed to truncate table %s: %v", table, err)
		}
	}
}
