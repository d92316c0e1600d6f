package vault

import "time"

// ShouldReset reports whether the allowance window that began at windowStart
// has lapsed at instant now. The comparison is strict: at exactly
// windowStart+cooldown the window is still open, one instant later it is not.
// A zero windowStart (account has never withdrawn) lapses immediately, so the
// first withdrawal of an account always opens a fresh window.
func ShouldReset(now, windowStart time.Time, cooldown time.Duration) bool {
	return now.After(windowStart.Add(cooldown))
}
