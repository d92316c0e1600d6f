// Package runtime assembles the vault service from configuration: database,
// cache, chain client, application wiring and the HTTP server.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/R3E-Network/gas_vault/internal/api/httpserver"
	"github.com/R3E-Network/gas_vault/internal/app"
	"github.com/R3E-Network/gas_vault/internal/app/httpapi"
	"github.com/R3E-Network/gas_vault/internal/app/storage"
	"github.com/R3E-Network/gas_vault/internal/app/storage/postgres"
	"github.com/R3E-Network/gas_vault/internal/app/storage/rediscache"
	"github.com/R3E-Network/gas_vault/internal/chain"
	"github.com/R3E-Network/gas_vault/internal/config"
	"github.com/R3E-Network/gas_vault/internal/platform/migrations"
	core "github.com/R3E-Network/gas_vault/internal/vault"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// Application wires core dependencies and manages the server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *httpserver.Server
	db         *sql.DB
}

// NewApplication constructs the runtime from cfg. A nil cfg loads the
// configuration from the default location.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	var (
		store storage.Store
		db    *sql.DB
	)
	if cfg.Database.DSN != "" {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = migrations.Apply(migrateCtx, db)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		store = postgres.New(db)
	} else {
		log.Warn("no database configured; vault state will not survive restarts")
	}

	var cache *rediscache.Cache
	if cfg.Redis.Addr != "" {
		cache = rediscache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSeconds)*time.Second, log)
	}

	var channel core.TransferChannel
	if cfg.Chain.RPCURL != "" {
		client, err := chain.NewClient(chain.Config{
			RPCURL:    cfg.Chain.RPCURL,
			NetworkID: cfg.Chain.NetworkID,
			Timeout:   time.Duration(cfg.Chain.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			if db != nil {
				db.Close()
			}
			return nil, fmt.Errorf("configure chain client: %w", err)
		}
		channel = chain.NewTransferChannel(client, time.Duration(cfg.Chain.TimeoutSeconds)*time.Second, log)
	} else {
		log.Warn("no chain RPC configured; payouts run in simulation mode")
	}

	application, err := app.New(app.Options{
		Ledger: core.Config{
			Capacity:  cfg.Vault.Capacity,
			Allowance: cfg.Vault.Allowance,
			Cooldown:  time.Duration(cfg.Vault.CooldownSeconds) * time.Second,
		},
		Store:         store,
		Cache:         cache,
		Channel:       channel,
		AuditSchedule: cfg.Audit.Schedule,
	}, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build application: %w", err)
	}

	handler, err := httpapi.NewHandler(httpapi.Options{
		Vault:        application.Vault,
		Auditor:      application.Auditor,
		Events:       application.Events,
		Log:          log,
		AuthSecret:   []byte(cfg.Auth.Secret),
		RateLimit:    cfg.RateLimit.RequestsPerSecond,
		RateBurst:    cfg.RateLimit.Burst,
		CORSOrigins:  cfg.Server.CORSOrigins,
		AuditLogPath: cfg.Audit.LogPath,
		AuditMax:     cfg.Audit.MaxEntries,
	})
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("build http handler: %w", err)
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpserver.New(cfg.Server, log, handler),
		db:         db,
	}, nil
}

// App exposes the composed application, mainly for tests.
func (a *Application) App() *app.Application { return a.app }

// Run starts the services and the HTTP server, then blocks until the context
// is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains the HTTP server, stops the services and closes the
// database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if err := a.app.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return firstErr
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
