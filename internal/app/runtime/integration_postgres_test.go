//go:build integration && postgres

package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/gas_vault/internal/config"
	"github.com/R3E-Network/gas_vault/internal/middleware"
)

const integrationSecret = "integration-secret"

func integrationConfig(t *testing.T, dsn string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.Secret = integrationSecret
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Database.DSN = dsn
	cfg.Logging.Level = "error"
	return cfg
}

func startRuntime(t *testing.T, cfg *config.Config) (*Application, func()) {
	t.Helper()
	appRuntime, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- appRuntime.Run(ctx) }()

	url := "http://" + appRuntime.httpServer.Addr() + "/health"
	for i := 0; i < 50; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("run did not return after cancel")
		}
		if err := appRuntime.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}
	return appRuntime, stop
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

// Requires a reachable Postgres instance. Point DATABASE_URL at it (a local
// .env works) and run with -tags "integration postgres".
func TestIntegrationPostgresPersistence(t *testing.T) {
	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	address := fmt.Sprintf("int-%d", time.Now().UnixNano())
	token, err := middleware.NewTokenGenerator([]byte(integrationSecret), 0).GenerateToken(address)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	first, stopFirst := startRuntime(t, integrationConfig(t, dsn))
	base := "http://" + first.httpServer.Addr() + "/api/v1/vault"

	var account struct {
		Balance int64 `json:"balance"`
	}
	if status := doJSON(t, http.MethodPost, base+"/deposits", token, map[string]int64{"amount": 700}, &account); status != http.StatusOK {
		t.Fatalf("deposit status: %d", status)
	}
	if account.Balance != 700 {
		t.Fatalf("expected balance 700, got %d", account.Balance)
	}
	if status := doJSON(t, http.MethodPost, base+"/withdrawals", token, map[string]int64{"amount": 250}, &account); status != http.StatusOK {
		t.Fatalf("withdraw status: %d", status)
	}
	if account.Balance != 450 {
		t.Fatalf("expected balance 450, got %d", account.Balance)
	}
	stopFirst()

	// A fresh process restores the ledger from Postgres.
	second, stopSecond := startRuntime(t, integrationConfig(t, dsn))
	defer stopSecond()
	base = "http://" + second.httpServer.Addr() + "/api/v1/vault"

	if status := doJSON(t, http.MethodGet, base+"/accounts/"+address, token, nil, &account); status != http.StatusOK {
		t.Fatalf("account status: %d", status)
	}
	if account.Balance != 450 {
		t.Fatalf("expected restored balance 450, got %d", account.Balance)
	}

	var journal []struct {
		Kind   string `json:"kind"`
		Status string `json:"status"`
	}
	if status := doJSON(t, http.MethodGet, base+"/accounts/"+address+"/journal", token, nil, &journal); status != http.StatusOK {
		t.Fatalf("journal status: %d", status)
	}
	if len(journal) < 2 {
		t.Fatalf("expected at least 2 journal entries, got %d", len(journal))
	}
	for _, entry := range journal {
		if entry.Status != "completed" {
			t.Fatalf("unexpected journal status %q for kind %q", entry.Status, entry.Kind)
		}
	}
}
