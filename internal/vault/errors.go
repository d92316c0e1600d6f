package vault

import "errors"

// Sentinel errors returned by vault operations. Callers classify failures
// with errors.Is; none of these conditions are retryable without a state
// change (a lapsed window, freed capacity, or a released guard).
var (
	// ErrZeroAmount rejects deposits and withdrawals of zero value.
	ErrZeroAmount = errors.New("amount must be positive")

	// ErrCapacityExceeded rejects deposits that would push total holdings
	// past the configured capacity.
	ErrCapacityExceeded = errors.New("vault capacity exceeded")

	// ErrNotAccountHolder rejects withdrawals from addresses that hold no
	// balance in the vault.
	ErrNotAccountHolder = errors.New("address holds no balance")

	// ErrAllowanceExceeded rejects withdrawals that would exceed the
	// per-account allowance for the current cooldown window.
	ErrAllowanceExceeded = errors.New("withdrawal allowance exceeded for current window")

	// ErrInsufficientBalance rejects withdrawals larger than the account
	// balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrReentrancyDetected rejects an operation that arrives while
	// another mutating operation is still in flight. Requests are never
	// queued behind the active one.
	ErrReentrancyDetected = errors.New("vault busy: reentrant call rejected")

	// ErrTransferFailed reports that the outbound transfer channel failed
	// and the debit was rolled back.
	ErrTransferFailed = errors.New("outbound transfer failed")

	// ErrUnsupportedOperation rejects unsolicited inbound transfers.
	// Value enters the vault through Deposit only.
	ErrUnsupportedOperation = errors.New("unsolicited transfers are not accepted")

	// ErrAmountOverflow rejects amounts that are negative or would
	// overflow the vault's 64-bit accounting.
	ErrAmountOverflow = errors.New("amount out of range")
)
