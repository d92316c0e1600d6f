// Package main runs the GAS vault service: a bounded-capacity vault with
// per-account withdrawal allowances, settled on Neo N3.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/gas_vault/internal/app/runtime"
	"github.com/R3E-Network/gas_vault/internal/config"
	"github.com/R3E-Network/gas_vault/internal/middleware"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to vault.yaml (default: config/vault.yaml or VAULT_CONFIG)")
		envFile    = flag.String("env", "", "Path to a .env file with environment overrides")
		issueToken = flag.String("issue-token", "", "Print a bearer token for the given address and exit")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env (%s): %v", *envFile, err)
		}
	} else {
		// A local .env is optional.
		_ = godotenv.Load()
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	} else {
		cfg = config.LoadOrDefault()
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid config: %v", err)
		}
	}

	if *issueToken != "" {
		expiry := time.Duration(cfg.Auth.TokenExpirySeconds) * time.Second
		token, err := middleware.NewTokenGenerator([]byte(cfg.Auth.Secret), expiry).GenerateToken(*issueToken)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	appRuntime, err := runtime.NewApplication(cfg)
	if err != nil {
		log.Fatalf("initialise vault service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	if err := appRuntime.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := appRuntime.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Vault service stopped")
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix("[vaultd] ")
}
