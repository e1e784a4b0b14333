package db

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for all tables.
func Schema() string {
	return schemaSQL
}

// EnsureSchema creates any missing tables and indexes. It is idempotent.
func EnsureSchema(ctx context.Context, conn Querier) error {
	// Without arguments pgx sends the statements over the simple protocol,
	// which allows several statements in one call.
	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
