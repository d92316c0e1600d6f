package vault

import "time"

// Account is the persisted projection of one vault account. The in-memory
// ledger stays authoritative while the service runs; rows exist so state
// survives restarts and so the auditor has something to reconcile against.
type Account struct {
	ID            string
	Address       string
	Balance       int64
	WindowUsed    int64
	WindowStart   time.Time
	DepositCount  int64
	WithdrawCount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Journal entry kinds.
const (
	EntryDeposit  = "deposit"
	EntryWithdraw = "withdraw"
	EntryInbound  = "inbound"
)

// Journal entry statuses.
const (
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// JournalEntry records the outcome of one vault operation. Withdrawals that
// were debited and then rolled back after a transfer failure are recorded as
// rejected entries with the failure reason.
type JournalEntry struct {
	ID           string
	Address      string
	Kind         string
	Amount       int64
	BalanceAfter int64
	Status       string
	Reason       string
	CreatedAt    time.Time
}
