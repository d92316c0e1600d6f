package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/gas_vault/internal/app/domain/vault"
	"github.com/R3E-Network/gas_vault/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu                sync.RWMutex
	nextID            int64
	vaultAccounts     map[string]vault.Account
	accountsByAddress map[string]string
	journal           []vault.JournalEntry
	journalByAddress  map[string][]vault.JournalEntry
}

var _ storage.VaultStore = (*Store)(nil)
var _ storage.JournalStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:            1,
		vaultAccounts:     make(map[string]vault.Account),
		accountsByAddress: make(map[string]string),
		journalByAddress:  make(map[string][]vault.JournalEntry),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// VaultStore implementation ---------------------------------------------------

func (s *Store) CreateVaultAccount(_ context.Context, acct vault.Account) (vault.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct.Address = strings.TrimSpace(acct.Address)
	if acct.Address == "" {
		return vault.Account{}, fmt.Errorf("vault account address is required")
	}
	addressKey := strings.ToLower(acct.Address)
	if existing, exists := s.accountsByAddress[addressKey]; exists {
		return vault.Account{}, fmt.Errorf("address %s already assigned to vault account %s", acct.Address, existing)
	}

	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.vaultAccounts[acct.ID]; exists {
		return vault.Account{}, fmt.Errorf("vault account %s already exists", acct.ID)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.vaultAccounts[acct.ID] = acct
	s.accountsByAddress[addressKey] = acct.ID
	return acct, nil
}

func (s *Store) UpdateVaultAccount(_ context.Context, acct vault.Account) (vault.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.vaultAccounts[acct.ID]
	if !ok {
		return vault.Account{}, fmt.Errorf("vault account %s not found", acct.ID)
	}

	// The address is the account's identity and never changes.
	acct.Address = original.Address
	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	s.vaultAccounts[acct.ID] = acct
	return acct, nil
}

func (s *Store) GetVaultAccount(_ context.Context, id string) (vault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.vaultAccounts[id]
	if !ok {
		return vault.Account{}, fmt.Errorf("vault account %s not found", id)
	}
	return acct, nil
}

func (s *Store) GetVaultAccountByAddress(_ context.Context, address string) (vault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.accountsByAddress[strings.ToLower(strings.TrimSpace(address))]; ok {
		return s.vaultAccounts[id], nil
	}
	return vault.Account{}, fmt.Errorf("vault account for address %s not found", address)
}

func (s *Store) ListVaultAccounts(_ context.Context) ([]vault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]vault.Account, 0, len(s.vaultAccounts))
	for _, acct := range s.vaultAccounts {
		result = append(result, acct)
	}
	return result, nil
}

// JournalStore implementation -------------------------------------------------

func (s *Store) CreateJournalEntry(_ context.Context, entry vault.JournalEntry) (vault.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	entry.CreatedAt = time.Now().UTC()

	addressKey := strings.ToLower(strings.TrimSpace(entry.Address))
	s.journal = append(s.journal, entry)
	s.journalByAddress[addressKey] = append(s.journalByAddress[addressKey], entry)
	return entry, nil
}

func (s *Store) ListJournalEntries(_ context.Context, address string, limit int) ([]vault.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.journalByAddress[strings.ToLower(strings.TrimSpace(address))], limit), nil
}

func (s *Store) ListRecentJournalEntries(_ context.Context, limit int) ([]vault.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.journal, limit), nil
}

// newestFirst copies entries in reverse insertion order, capped at limit.
// A non-positive limit returns everything.
func newestFirst(entries []vault.JournalEntry, limit int) []vault.JournalEntry {
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]vault.JournalEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, entries[i])
	}
	return result
}
