// Package vault exposes the deposit and withdrawal operations of the value
// vault and keeps the durable projections in step with the in-memory ledger.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/R3E-Network/gas_vault/internal/app/domain/vault"
	"github.com/R3E-Network/gas_vault/internal/app/metrics"
	"github.com/R3E-Network/gas_vault/internal/app/storage"
	"github.com/R3E-Network/gas_vault/internal/app/storage/rediscache"
	"github.com/R3E-Network/gas_vault/internal/events"
	core "github.com/R3E-Network/gas_vault/internal/vault"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// Service coordinates the ledger with durable storage, the cache and the
// event log. The ledger is the source of truth: every operation commits there
// first, and storage, cache and metrics are updated afterwards. A projection
// failure is logged and left for the auditor to flag; it never changes the
// outcome of the operation.
type Service struct {
	ledger *core.Vault
	store  storage.Store
	cache  *rediscache.Cache
	events events.EventLogger
	log    *logger.Logger
}

// New constructs a vault service. store and cache may be nil, in which case
// the ledger runs without persistence or read-model mirroring.
func New(ledger *core.Vault, store storage.Store, cache *rediscache.Cache, eventLog events.EventLogger, log *logger.Logger) *Service {
	if eventLog == nil {
		eventLog = events.NoOpLogger{}
	}
	if log == nil {
		log = logger.NewDefault("vault")
	}
	return &Service{
		ledger: ledger,
		store:  store,
		cache:  cache,
		events: eventLog,
		log:    log,
	}
}

// Deposit credits amount to address. The account is created on its first
// successful deposit.
func (s *Service) Deposit(ctx context.Context, address string, amount int64) (core.AccountView, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return core.AccountView{}, fmt.Errorf("address is required")
	}

	start := time.Now()
	view, err := s.ledger.Deposit(address, amount)
	if err != nil {
		metrics.RecordOperation("deposit", domain.StatusRejected, time.Since(start))
		s.recordRejection(ctx, domain.EntryDeposit, address, amount, err)
		return core.AccountView{}, err
	}
	metrics.RecordOperation("deposit", domain.StatusCompleted, time.Since(start))

	s.project(ctx, view, domain.JournalEntry{
		Address:      view.Address,
		Kind:         domain.EntryDeposit,
		Amount:       amount,
		BalanceAfter: view.Balance,
		Status:       domain.StatusCompleted,
	})

	events.NewEvent(events.EventDepositRecorded).
		Address(view.Address).
		Amount(amount).
		Message("deposit recorded").
		LogToWithContext(ctx, s.events)

	s.log.WithField("address", view.Address).
		WithField("amount", amount).
		WithField("balance", view.Balance).
		Info("deposit recorded")
	return view, nil
}

// Withdraw debits amount from address and pays it out through the transfer
// channel. A failed payout is rolled back in the ledger and journaled as a
// rejected entry with the failure reason.
func (s *Service) Withdraw(ctx context.Context, address string, amount int64) (core.AccountView, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return core.AccountView{}, fmt.Errorf("address is required")
	}

	start := time.Now()
	view, err := s.ledger.Withdraw(address, amount)
	if err != nil {
		metrics.RecordOperation("withdraw", domain.StatusRejected, time.Since(start))
		s.recordRejection(ctx, domain.EntryWithdraw, address, amount, err)
		return core.AccountView{}, err
	}
	metrics.RecordOperation("withdraw", domain.StatusCompleted, time.Since(start))

	s.project(ctx, view, domain.JournalEntry{
		Address:      view.Address,
		Kind:         domain.EntryWithdraw,
		Amount:       amount,
		BalanceAfter: view.Balance,
		Status:       domain.StatusCompleted,
	})

	events.NewEvent(events.EventWithdrawRecorded).
		Address(view.Address).
		Amount(amount).
		Message("withdrawal sent").
		LogToWithContext(ctx, s.events)

	s.log.WithField("address", view.Address).
		WithField("amount", amount).
		WithField("balance", view.Balance).
		Info("withdrawal sent")
	return view, nil
}

// NotifyInbound reports an unsolicited inbound transfer. The vault never
// accepts these: the rejection is returned to the caller and journaled so
// misdirected funds leave a trace.
func (s *Service) NotifyInbound(ctx context.Context, from string, amount int64) error {
	from = strings.TrimSpace(from)
	err := s.ledger.Receive(from, amount)

	if err != nil && s.store != nil {
		entry := domain.JournalEntry{
			Address: from,
			Kind:    domain.EntryInbound,
			Amount:  amount,
			Status:  domain.StatusRejected,
			Reason:  err.Error(),
		}
		if _, jerr := s.store.CreateJournalEntry(ctx, entry); jerr != nil {
			s.log.WithError(jerr).WithField("address", from).Warn("append journal entry")
		}
	}

	events.NewEvent(events.EventInboundRejected).
		Address(from).
		Amount(amount).
		Severity(events.SeverityWarning).
		Message("unsolicited inbound transfer rejected").
		LogToWithContext(ctx, s.events)

	s.log.WithField("from", from).
		WithField("amount", amount).
		Warn("unsolicited inbound transfer rejected")
	return err
}

// Account returns the live snapshot of one account.
func (s *Service) Account(address string) (core.AccountView, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return core.AccountView{}, fmt.Errorf("address is required")
	}
	view, ok := s.ledger.Account(address)
	if !ok {
		return core.AccountView{}, fmt.Errorf("account %s not found", address)
	}
	return view, nil
}

// Accounts returns live snapshots of all accounts, ordered by address.
func (s *Service) Accounts() []core.AccountView {
	return s.ledger.Accounts()
}

// Stats returns the vault-wide accounting snapshot.
func (s *Service) Stats() core.StatsView {
	return s.ledger.Stats()
}

// Limits returns the capacity, allowance and cooldown the vault enforces.
func (s *Service) Limits() core.Config {
	return s.ledger.Config()
}

// Journal returns persisted journal entries, newest first. With an empty
// address it spans all accounts. Without a store it returns nothing.
func (s *Service) Journal(ctx context.Context, address string, limit int) ([]domain.JournalEntry, error) {
	if s.store == nil {
		return nil, nil
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return s.store.ListRecentJournalEntries(ctx, limit)
	}
	return s.store.ListJournalEntries(ctx, address, limit)
}

// Restore primes the ledger from persisted account rows. It runs once at
// startup, before the API begins serving.
func (s *Service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rows, err := s.store.ListVaultAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list persisted accounts: %w", err)
	}

	views := make([]core.AccountView, 0, len(rows))
	for _, row := range rows {
		views = append(views, core.AccountView{
			Address:           row.Address,
			Balance:           row.Balance,
			WithdrawnInWindow: row.WindowUsed,
			WindowStart:       row.WindowStart,
			DepositCount:      row.DepositCount,
			WithdrawCount:     row.WithdrawCount,
		})
	}
	if err := s.ledger.Load(views); err != nil {
		return fmt.Errorf("restore ledger state: %w", err)
	}

	stats := s.ledger.Stats()
	metrics.RecordLedgerState(stats.HeldValue, stats.Accounts)

	events.NewEvent(events.EventStateRestored).
		Message(fmt.Sprintf("restored %d accounts", len(views))).
		Metadata("held_value", strconv.FormatInt(stats.HeldValue, 10)).
		LogToWithContext(ctx, s.events)

	s.log.WithField("accounts", len(views)).
		WithField("held_value", stats.HeldValue).
		Info("ledger state restored")
	return nil
}

// project pushes a committed operation into the store, the cache and the
// ledger gauges.
func (s *Service) project(ctx context.Context, view core.AccountView, entry domain.JournalEntry) {
	stats := s.ledger.Stats()

	if s.store != nil {
		if err := s.upsertAccount(ctx, view); err != nil {
			s.log.WithError(err).WithField("address", view.Address).Warn("project account state")
		}
		if _, err := s.store.CreateJournalEntry(ctx, entry); err != nil {
			s.log.WithError(err).WithField("address", entry.Address).Warn("append journal entry")
		}
	}
	if s.cache != nil {
		s.cache.SetAccount(ctx, view)
		s.cache.SetStats(ctx, stats)
	}
	metrics.RecordLedgerState(stats.HeldValue, stats.Accounts)
}

func (s *Service) upsertAccount(ctx context.Context, view core.AccountView) error {
	existing, err := s.store.GetVaultAccountByAddress(ctx, view.Address)
	if err != nil {
		_, err = s.store.CreateVaultAccount(ctx, domain.Account{
			Address:       view.Address,
			Balance:       view.Balance,
			WindowUsed:    view.WithdrawnInWindow,
			WindowStart:   view.WindowStart,
			DepositCount:  view.DepositCount,
			WithdrawCount: view.WithdrawCount,
		})
		return err
	}

	existing.Balance = view.Balance
	existing.WindowUsed = view.WithdrawnInWindow
	existing.WindowStart = view.WindowStart
	existing.DepositCount = view.DepositCount
	existing.WithdrawCount = view.WithdrawCount
	_, err = s.store.UpdateVaultAccount(ctx, existing)
	return err
}

// recordRejection journals a rejected operation and publishes the matching
// event. Rejections leave the ledger untouched, so no account projection is
// needed.
func (s *Service) recordRejection(ctx context.Context, kind, address string, amount int64, cause error) {
	var balance int64
	if view, ok := s.ledger.Account(address); ok {
		balance = view.Balance
	}

	if s.store != nil {
		entry := domain.JournalEntry{
			Address:      address,
			Kind:         kind,
			Amount:       amount,
			BalanceAfter: balance,
			Status:       domain.StatusRejected,
			Reason:       cause.Error(),
		}
		if _, err := s.store.CreateJournalEntry(ctx, entry); err != nil {
			s.log.WithError(err).WithField("address", address).Warn("append journal entry")
		}
	}

	eventType := events.EventDepositRejected
	message := "deposit rejected"
	if kind == domain.EntryWithdraw {
		eventType = events.EventWithdrawRejected
		message = "withdrawal rejected"
		if errors.Is(cause, core.ErrTransferFailed) {
			eventType = events.EventTransferFailed
			message = "withdrawal rolled back after transfer failure"
		}
	}

	builder := events.NewEvent(eventType).
		Address(address).
		Amount(amount).
		Message(message)
	if eventType == events.EventTransferFailed {
		builder.ErrorFrom(cause)
	} else {
		builder.Severity(events.SeverityWarning).Metadata("reason", cause.Error())
	}
	builder.LogToWithContext(ctx, s.events)

	s.log.WithError(cause).
		WithField("address", address).
		WithField("amount", amount).
		Warnf("%s", message)
}
