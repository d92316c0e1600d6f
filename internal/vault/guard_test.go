package vault

import (
	"errors"
	"testing"
)

func TestGuardRejectsConcurrentEntry(t *testing.T) {
	var g Guard

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- g.Do(func() error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	if err := g.Do(func() error { return nil }); !errors.Is(err, ErrReentrancyDetected) {
		t.Fatalf("expected ErrReentrancyDetected while busy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first critical section failed: %v", err)
	}

	if err := g.Do(func() error { return nil }); err != nil {
		t.Fatalf("guard not released after completion: %v", err)
	}
}

func TestGuardReleasesOnError(t *testing.T) {
	var g Guard

	boom := errors.New("boom")
	if err := g.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped section error, got %v", err)
	}
	if err := g.Do(func() error { return nil }); err != nil {
		t.Fatalf("guard not released after error: %v", err)
	}
}

func TestGuardReleasesOnPanic(t *testing.T) {
	var g Guard

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = g.Do(func() error { panic("boom") })
	}()

	if err := g.Do(func() error { return nil }); err != nil {
		t.Fatalf("guard not released after panic: %v", err)
	}
}

func TestGuardReentrantUseRejected(t *testing.T) {
	var g Guard

	err := g.Do(func() error {
		return g.Do(func() error { return nil })
	})
	if !errors.Is(err, ErrReentrancyDetected) {
		t.Fatalf("expected ErrReentrancyDetected for nested entry, got %v", err)
	}
}
