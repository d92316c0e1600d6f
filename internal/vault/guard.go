package vault

import "sync"

// Guard provides scoped mutual exclusion without queuing. At most one
// critical section runs at a time; a second caller is turned away with
// ErrReentrancyDetected instead of waiting. This is what keeps an outbound
// transfer from reaching back into the vault mid-operation.
type Guard struct {
	mu sync.Mutex
}

// Do runs fn if the guard is free, holding it for the duration. If another
// critical section is in flight it returns ErrReentrancyDetected immediately.
// The guard is released when fn returns, on success, error and panic alike.
func (g *Guard) Do(fn func() error) error {
	if !g.mu.TryLock() {
		return ErrReentrancyDetected
	}
	defer g.mu.Unlock()
	return fn()
}
