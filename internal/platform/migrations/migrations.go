// Package migrations applies the database schema for the vault service.
// Every statement is idempotent so Apply can run on each startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS vault_accounts (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0,
		window_used BIGINT NOT NULL DEFAULT 0,
		window_start TIMESTAMPTZ,
		deposit_count BIGINT NOT NULL DEFAULT 0,
		withdraw_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS vault_accounts_address_idx
		ON vault_accounts (lower(address))`,
	`CREATE TABLE IF NOT EXISTS vault_journal (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS vault_journal_address_idx
		ON vault_journal (lower(address), created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS vault_journal_created_idx
		ON vault_journal (created_at DESC)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
