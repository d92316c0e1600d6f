package httpserver

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/R3E-Network/gas_vault/internal/config"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

func TestServerStartShutdown(t *testing.T) {
	log := logger.NewDefault("test")
	log.SetOutput(io.Discard)

	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, log, http.NewServeMux())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Fatalf("expected ErrServerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestServerAddr(t *testing.T) {
	srv := New(config.ServerConfig{Host: "10.1.2.3", Port: 9999}, nil, nil)
	if srv.Addr() != "10.1.2.3:9999" {
		t.Fatalf("unexpected addr %q", srv.Addr())
	}
}
