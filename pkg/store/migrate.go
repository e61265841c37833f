package store

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed schema.sql
var schema string

// Migrate creates any missing tables and indexes. It is safe to run on every start.
func (c *Client) Migrate(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Migrate", schema)
	_, err := c.pool.Exec(ctx, schema)
	finishSpan(span, err)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	slog.Info("Database schema is up to date")
	return nil
}
