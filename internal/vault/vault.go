// Package vault implements a bounded-capacity GAS vault. Accounts deposit
// value against a global capacity and withdraw it subject to a per-account
// allowance that renews on a cooldown window. Withdrawals debit the vault
// before the outbound transfer is attempted and roll back completely if the
// transfer channel fails. All amounts are GAS minor units (1e-8 GAS).
package vault

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// TransferChannel delivers withdrawn value to its recipient, typically by
// settling on chain. Send is synchronous: a nil return means the value has
// left the vault for good.
type TransferChannel interface {
	Send(recipient string, amount int64) error
}

// Clock supplies the current time. Production code uses SystemClock; tests
// substitute a manual clock to step across cooldown windows.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Config fixes the economic limits of a vault.
type Config struct {
	// Capacity bounds the total value held across all accounts.
	Capacity int64
	// Allowance bounds what one account may withdraw inside a single
	// cooldown window.
	Allowance int64
	// Cooldown is the length of the per-account withdrawal window.
	Cooldown time.Duration
}

// Validate reports whether the limits describe a usable vault.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.Allowance <= 0 {
		return fmt.Errorf("allowance must be positive, got %d", c.Allowance)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %v", c.Cooldown)
	}
	if c.Allowance > c.Capacity {
		return fmt.Errorf("allowance %d exceeds capacity %d", c.Allowance, c.Capacity)
	}
	return nil
}

// AccountView is a point-in-time snapshot of one account.
type AccountView struct {
	Address           string
	Balance           int64
	WithdrawnInWindow int64
	WindowStart       time.Time
	DepositCount      int64
	WithdrawCount     int64
}

// StatsView is a point-in-time snapshot of vault-wide accounting.
// TotalDeposited and HeldValue are maintained as one counter and are equal
// by construction; both are reported so downstream consumers can cross-check
// them.
type StatsView struct {
	TotalDeposited int64
	HeldValue      int64
	Capacity       int64
	Allowance      int64
	DepositCount   int64
	WithdrawCount  int64
	Accounts       int
}

type account struct {
	balance       int64
	windowUsed    int64
	windowStart   time.Time
	depositCount  int64
	withdrawCount int64
}

// Vault tracks per-account balances under a global capacity and enforces a
// per-account withdrawal allowance over cooldown windows. Mutating
// operations are serialized by a non-queuing guard: a second mutation
// arriving while one is in flight fails with ErrReentrancyDetected. Reads
// never block and observe either the state before or after an in-flight
// mutation, never a partial one.
type Vault struct {
	cfg     Config
	channel TransferChannel
	clock   Clock

	guard Guard

	mu            sync.RWMutex
	accounts      map[string]*account
	held          int64
	depositCount  int64
	withdrawCount int64
}

// New creates a Vault with the given limits. Withdrawn value is delivered
// through channel, which must be non-nil before the first Withdraw. A nil
// clock defaults to the system clock.
func New(cfg Config, channel TransferChannel, clock Clock) *Vault {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Vault{
		cfg:      cfg,
		channel:  channel,
		clock:    clock,
		accounts: make(map[string]*account),
	}
}

// Config returns the limits the vault was created with.
func (v *Vault) Config() Config { return v.cfg }

// ==== Mutations ====

// Deposit credits amount to addr's account. The account record is created on
// its first successful deposit; validation failures leave no trace. Fails
// with ErrZeroAmount, ErrCapacityExceeded or ErrAmountOverflow, and with
// ErrReentrancyDetected when another mutation is in flight.
func (v *Vault) Deposit(addr string, amount int64) (AccountView, error) {
	var view AccountView
	err := v.guard.Do(func() error {
		if amount < 0 {
			return ErrAmountOverflow
		}
		if amount == 0 {
			return ErrZeroAmount
		}

		v.mu.RLock()
		held := v.held
		var balance int64
		if acct := v.accounts[addr]; acct != nil {
			balance = acct.balance
		}
		v.mu.RUnlock()

		newHeld, err := addChecked(held, amount)
		if err != nil {
			return err
		}
		if newHeld > v.cfg.Capacity {
			return ErrCapacityExceeded
		}
		newBalance, err := addChecked(balance, amount)
		if err != nil {
			return err
		}

		v.mu.Lock()
		acct := v.accounts[addr]
		if acct == nil {
			acct = &account{}
			v.accounts[addr] = acct
		}
		acct.balance = newBalance
		acct.depositCount++
		v.held = newHeld
		v.depositCount++
		view = v.viewLocked(addr, acct)
		v.mu.Unlock()
		return nil
	})
	return view, err
}

// Withdraw debits amount from addr's account and sends it to addr over the
// transfer channel. The debit is committed before the transfer goes out and
// is rolled back in full if the channel fails; window usage only advances
// once the transfer has settled. Validation failures are reported in a fixed
// order: ErrNotAccountHolder, ErrZeroAmount, ErrInsufficientBalance,
// ErrAllowanceExceeded.
func (v *Vault) Withdraw(addr string, amount int64) (AccountView, error) {
	var view AccountView
	err := v.guard.Do(func() error {
		// ---- Validate ----
		if amount < 0 {
			return ErrAmountOverflow
		}

		v.mu.RLock()
		acct := v.accounts[addr]
		var (
			balance     int64
			windowUsed  int64
			windowStart time.Time
		)
		if acct != nil {
			balance, windowUsed, windowStart = acct.balance, acct.windowUsed, acct.windowStart
		}
		held := v.held
		v.mu.RUnlock()

		if balance == 0 {
			return ErrNotAccountHolder
		}
		if amount == 0 {
			return ErrZeroAmount
		}
		if amount > balance {
			return ErrInsufficientBalance
		}

		// A lapsed window is reset in staging only; the reset becomes
		// visible when the transfer settles.
		now := v.clock.Now()
		stagedUsed, stagedStart := windowUsed, windowStart
		if ShouldReset(now, stagedStart, v.cfg.Cooldown) {
			stagedUsed, stagedStart = 0, now
		}
		newUsed, err := addChecked(stagedUsed, amount)
		if err != nil {
			return err
		}
		if newUsed > v.cfg.Allowance {
			return ErrAllowanceExceeded
		}

		newBalance, err := subChecked(balance, amount)
		if err != nil {
			return err
		}
		newHeld, err := subChecked(held, amount)
		if err != nil {
			return err
		}

		// ---- Debit ----
		// Committed before the transfer so no reader can observe value
		// both inside the vault and on the wire.
		v.mu.Lock()
		acct.balance = newBalance
		acct.withdrawCount++
		v.held = newHeld
		v.withdrawCount++
		v.mu.Unlock()

		// ---- Transfer ----
		if sendErr := v.channel.Send(addr, amount); sendErr != nil {
			v.mu.Lock()
			acct.balance = balance
			acct.withdrawCount--
			v.held = held
			v.withdrawCount--
			v.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrTransferFailed, sendErr)
		}

		// ---- Finalize ----
		v.mu.Lock()
		acct.windowUsed = newUsed
		acct.windowStart = stagedStart
		view = v.viewLocked(addr, acct)
		v.mu.Unlock()
		return nil
	})
	return view, err
}

// Receive handles value pushed at the vault from outside. The vault accepts
// value through Deposit only, so every unsolicited transfer is rejected with
// ErrUnsupportedOperation and no state changes. Receive bypasses the guard:
// an inbound push arriving while a withdrawal is in flight gets the same
// rejection, not ErrReentrancyDetected.
func (v *Vault) Receive(from string, amount int64) error {
	return ErrUnsupportedOperation
}

// Load replaces the vault's state with the supplied account snapshots. It is
// meant for rehydrating from storage at startup, before the vault serves
// requests. Global counters are rebuilt from the per-account ones.
func (v *Vault) Load(accounts []AccountView) error {
	return v.guard.Do(func() error {
		var held, deposits, withdrawals int64
		restored := make(map[string]*account, len(accounts))
		for _, a := range accounts {
			if a.Balance < 0 || a.WithdrawnInWindow < 0 {
				return fmt.Errorf("account %s: %w", a.Address, ErrAmountOverflow)
			}
			if _, ok := restored[a.Address]; ok {
				return fmt.Errorf("duplicate account %s in snapshot", a.Address)
			}
			h, err := addChecked(held, a.Balance)
			if err != nil {
				return fmt.Errorf("account %s: %w", a.Address, err)
			}
			held = h
			deposits += a.DepositCount
			withdrawals += a.WithdrawCount
			restored[a.Address] = &account{
				balance:       a.Balance,
				windowUsed:    a.WithdrawnInWindow,
				windowStart:   a.WindowStart,
				depositCount:  a.DepositCount,
				withdrawCount: a.WithdrawCount,
			}
		}
		if held > v.cfg.Capacity {
			return fmt.Errorf("restored holdings %d exceed capacity %d", held, v.cfg.Capacity)
		}

		v.mu.Lock()
		v.accounts = restored
		v.held = held
		v.depositCount = deposits
		v.withdrawCount = withdrawals
		v.mu.Unlock()
		return nil
	})
}

// ==== Reads ====

// Account returns a snapshot of addr's account. The second return is false
// if the address has never completed a deposit.
func (v *Vault) Account(addr string) (AccountView, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	acct := v.accounts[addr]
	if acct == nil {
		return AccountView{}, false
	}
	return v.viewLocked(addr, acct), true
}

// Accounts returns a snapshot of every account, ordered by address.
func (v *Vault) Accounts() []AccountView {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]AccountView, 0, len(v.accounts))
	for addr, acct := range v.accounts {
		out = append(out, v.viewLocked(addr, acct))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Stats returns a snapshot of vault-wide accounting.
func (v *Vault) Stats() StatsView {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return StatsView{
		TotalDeposited: v.held,
		HeldValue:      v.held,
		Capacity:       v.cfg.Capacity,
		Allowance:      v.cfg.Allowance,
		DepositCount:   v.depositCount,
		WithdrawCount:  v.withdrawCount,
		Accounts:       len(v.accounts),
	}
}

func (v *Vault) viewLocked(addr string, acct *account) AccountView {
	return AccountView{
		Address:           addr,
		Balance:           acct.balance,
		WithdrawnInWindow: acct.windowUsed,
		WindowStart:       acct.windowStart,
		DepositCount:      acct.depositCount,
		WithdrawCount:     acct.withdrawCount,
	}
}

// ==== Checked arithmetic ====

func addChecked(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

func subChecked(a, b int64) (int64, error) {
	if b < 0 && a > math.MaxInt64+b {
		return 0, ErrAmountOverflow
	}
	if b > 0 && a < math.MinInt64+b {
		return 0, ErrAmountOverflow
	}
	return a - b, nil
}
