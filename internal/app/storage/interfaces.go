package storage

import (
	"context"

	"github.com/R3E-Network/gas_vault/internal/app/domain/vault"
)

// VaultStore persists vault account projections.
type VaultStore interface {
	CreateVaultAccount(ctx context.Context, acct vault.Account) (vault.Account, error)
	UpdateVaultAccount(ctx context.Context, acct vault.Account) (vault.Account, error)
	GetVaultAccount(ctx context.Context, id string) (vault.Account, error)
	GetVaultAccountByAddress(ctx context.Context, address string) (vault.Account, error)
	ListVaultAccounts(ctx context.Context) ([]vault.Account, error)
}

// JournalStore persists the operation journal.
type JournalStore interface {
	CreateJournalEntry(ctx context.Context, entry vault.JournalEntry) (vault.JournalEntry, error)
	ListJournalEntries(ctx context.Context, address string, limit int) ([]vault.JournalEntry, error)
	ListRecentJournalEntries(ctx context.Context, limit int) ([]vault.JournalEntry, error)
}

// Store aggregates every persistence concern of the vault service.
type Store interface {
	VaultStore
	JournalStore
}
