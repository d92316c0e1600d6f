package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/gas_vault/internal/app/domain/vault"
	"github.com/R3E-Network/gas_vault/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.VaultStore = (*Store)(nil)
var _ storage.JournalStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- VaultStore -------------------------------------------------------------

func (s *Store) CreateVaultAccount(ctx context.Context, acct vault.Account) (vault.Account, error) {
	if acct.Address == "" {
		return vault.Account{}, errors.New("address required")
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_accounts (id, address, balance, window_used, window_start, deposit_count, withdraw_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, acct.ID, acct.Address, acct.Balance, acct.WindowUsed, toNullTime(acct.WindowStart), acct.DepositCount, acct.WithdrawCount, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return vault.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateVaultAccount(ctx context.Context, acct vault.Account) (vault.Account, error) {
	existing, err := s.GetVaultAccount(ctx, acct.ID)
	if err != nil {
		return vault.Account{}, err
	}

	acct.Address = existing.Address
	acct.CreatedAt = existing.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE vault_accounts
		SET balance = $2, window_used = $3, window_start = $4, deposit_count = $5, withdraw_count = $6, updated_at = $7
		WHERE id = $1
	`, acct.ID, acct.Balance, acct.WindowUsed, toNullTime(acct.WindowStart), acct.DepositCount, acct.WithdrawCount, acct.UpdatedAt)
	if err != nil {
		return vault.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return vault.Account{}, sql.ErrNoRows
	}
	return acct, nil
}

func (s *Store) GetVaultAccount(ctx context.Context, id string) (vault.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address, balance, window_used, window_start, deposit_count, withdraw_count, created_at, updated_at
		FROM vault_accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) GetVaultAccountByAddress(ctx context.Context, address string) (vault.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address, balance, window_used, window_start, deposit_count, withdraw_count, created_at, updated_at
		FROM vault_accounts
		WHERE lower(address) = lower($1)
	`, address)
	return scanAccount(row)
}

func (s *Store) ListVaultAccounts(ctx context.Context) ([]vault.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, balance, window_used, window_start, deposit_count, withdraw_count, created_at, updated_at
		FROM vault_accounts
		ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]vault.Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

// --- JournalStore -----------------------------------------------------------

func (s *Store) CreateJournalEntry(ctx context.Context, entry vault.JournalEntry) (vault.JournalEntry, error) {
	if entry.Address == "" {
		return vault.JournalEntry{}, errors.New("address required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_journal (id, address, kind, amount, balance_after, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.Address, entry.Kind, entry.Amount, entry.BalanceAfter, entry.Status, entry.Reason, entry.CreatedAt)
	if err != nil {
		return vault.JournalEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListJournalEntries(ctx context.Context, address string, limit int) ([]vault.JournalEntry, error) {
	query := `
		SELECT id, address, kind, amount, balance_after, status, reason, created_at
		FROM vault_journal
		WHERE lower(address) = lower($1)
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{address}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryJournal(ctx, query, args...)
}

func (s *Store) ListRecentJournalEntries(ctx context.Context, limit int) ([]vault.JournalEntry, error) {
	query := `
		SELECT id, address, kind, amount, balance_after, status, reason, created_at
		FROM vault_journal
		ORDER BY created_at DESC, id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.queryJournal(ctx, query, args...)
}

func (s *Store) queryJournal(ctx context.Context, query string, args ...interface{}) ([]vault.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]vault.JournalEntry, 0)
	for rows.Next() {
		var entry vault.JournalEntry
		if err := rows.Scan(&entry.ID, &entry.Address, &entry.Kind, &entry.Amount, &entry.BalanceAfter, &entry.Status, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// --- Helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (vault.Account, error) {
	var (
		acct        vault.Account
		windowStart sql.NullTime
	)
	if err := row.Scan(&acct.ID, &acct.Address, &acct.Balance, &acct.WindowUsed, &windowStart, &acct.DepositCount, &acct.WithdrawCount, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return vault.Account{}, err
	}
	if windowStart.Valid {
		acct.WindowStart = windowStart.Time.UTC()
	}
	return acct, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
