package system

import (
	"context"
	"errors"
	"testing"
)

type scriptedService struct {
	name     string
	startErr error
	stopErr  error
	calls    *[]string
}

func (s scriptedService) Name() string { return s.name }

func (s scriptedService) Start(context.Context) error {
	*s.calls = append(*s.calls, "start:"+s.name)
	return s.startErr
}

func (s scriptedService) Stop(context.Context) error {
	*s.calls = append(*s.calls, "stop:"+s.name)
	return s.stopErr
}

func TestManagerStartStopOrder(t *testing.T) {
	mgr := NewManager()
	var calls []string

	for _, name := range []string{"first", "second", "third"} {
		if err := mgr.Register(scriptedService{name: name, calls: &calls}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := mgr.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:first", "start:second", "start:third", "stop:third", "stop:second", "stop:first"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	mgr := NewManager()
	var calls []string

	if err := mgr.Register(scriptedService{name: "svc", calls: &calls}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.Register(scriptedService{name: "svc", calls: &calls}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestManagerStartFailureUnwindsStartedServices(t *testing.T) {
	mgr := NewManager()
	var calls []string
	boom := errors.New("boom")

	_ = mgr.Register(scriptedService{name: "ok", calls: &calls})
	_ = mgr.Register(scriptedService{name: "bad", startErr: boom, calls: &calls})
	_ = mgr.Register(scriptedService{name: "never", calls: &calls})

	err := mgr.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected start failure, got %v", err)
	}

	want := []string{"start:ok", "start:bad", "stop:ok"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}

	// The manager recovers after a failed start.
	if err := mgr.Register(scriptedService{name: "late", calls: &calls}); err != nil {
		t.Fatalf("register after failed start: %v", err)
	}
}

func TestManagerRejectsRegisterAfterStart(t *testing.T) {
	mgr := NewManager()
	var calls []string

	_ = mgr.Register(scriptedService{name: "svc", calls: &calls})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := mgr.Register(scriptedService{name: "late", calls: &calls}); err == nil {
		t.Fatal("expected registration after start to fail")
	}
}

func TestNoopService(t *testing.T) {
	svc := NoopService{ServiceName: "noop"}
	if svc.Name() != "noop" {
		t.Fatalf("name = %q", svc.Name())
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
