package app

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/gas_vault/internal/app/metrics"
	"github.com/R3E-Network/gas_vault/internal/app/services/vault"
	"github.com/R3E-Network/gas_vault/internal/app/storage"
	"github.com/R3E-Network/gas_vault/internal/app/storage/memory"
	"github.com/R3E-Network/gas_vault/internal/app/storage/rediscache"
	"github.com/R3E-Network/gas_vault/internal/app/system"
	"github.com/R3E-Network/gas_vault/internal/chain"
	"github.com/R3E-Network/gas_vault/internal/events"
	core "github.com/R3E-Network/gas_vault/internal/vault"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// Development limits used when no ledger configuration is supplied: a 10k GAS
// vault with a 500 GAS per-account allowance renewing daily.
const (
	defaultCapacity  = 1_000_000_000_000
	defaultAllowance = 50_000_000_000
	defaultCooldown  = 24 * time.Hour
)

// Options configures the application. The zero value gives an in-memory vault
// with simulated transfers, which is what tests want.
type Options struct {
	Ledger  core.Config
	Store   storage.Store
	Cache   *rediscache.Cache
	Channel core.TransferChannel
	Clock   core.Clock
	Events  events.EventLogger

	AuditSchedule string
}

// Application ties the vault service and its background workers together and
// manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Vault   *vault.Service
	Auditor *vault.Auditor
	Events  events.EventLogger
}

// New builds a fully initialised application.
func New(opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	cfg := opts.Ledger
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.Allowance <= 0 {
		cfg.Allowance = defaultAllowance
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ledger limits: %w", err)
	}

	store := opts.Store
	if store == nil {
		store = memory.New()
	}
	channel := opts.Channel
	if channel == nil {
		channel = chain.NewSimulatedChannel(log)
	}
	eventLog := opts.Events
	if eventLog == nil {
		eventLog = events.NewRingBuffer(256)
	}

	ledger := core.New(cfg, channel, opts.Clock)
	metrics.RecordLedgerLimits(cfg.Capacity, cfg.Allowance)
	service := vault.New(ledger, store, opts.Cache, eventLog, log)

	auditor := vault.NewAuditor(service, store, opts.Cache, eventLog, log)
	if opts.AuditSchedule != "" {
		auditor.WithSchedule(opts.AuditSchedule)
	}

	manager := system.NewManager()
	if err := manager.Register(auditor); err != nil {
		return nil, fmt.Errorf("register %s: %w", auditor.Name(), err)
	}

	return &Application{
		manager: manager,
		log:     log,
		Vault:   service,
		Auditor: auditor,
		Events:  eventLog,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start restores ledger state from the store and begins all registered
// services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Vault.Restore(ctx); err != nil {
		return fmt.Errorf("restore vault: %w", err)
	}
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
