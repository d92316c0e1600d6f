// Package config loads the vault service configuration from YAML with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// Config is the root configuration for the vault service.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Redis     RedisConfig          `yaml:"redis"`
	Chain     ChainConfig          `yaml:"chain"`
	Vault     VaultConfig          `yaml:"vault"`
	Auth      AuthConfig           `yaml:"auth"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Audit     AuditConfig          `yaml:"audit"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig configures the Postgres projection store. An empty DSN keeps
// the service on the in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the optional read cache. An empty Addr disables it.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// ChainConfig configures the Neo N3 node connection. An empty RPCURL puts the
// transfer channel into simulation mode, where payouts are logged but not
// settled.
type ChainConfig struct {
	RPCURL         string `yaml:"rpc_url"`
	NetworkID      uint32 `yaml:"network_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// VaultConfig fixes the economic limits of the ledger. Amounts are GAS minor
// units (1e-8 GAS).
type VaultConfig struct {
	Capacity        int64 `yaml:"capacity"`
	Allowance       int64 `yaml:"allowance"`
	CooldownSeconds int64 `yaml:"cooldown_seconds"`
}

// AuthConfig configures bearer token authentication.
type AuthConfig struct {
	Secret             string `yaml:"secret"`
	TokenExpirySeconds int    `yaml:"token_expiry_seconds"`
}

// RateLimitConfig throttles API callers per account address.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// AuditConfig configures the operation audit trail.
type AuditConfig struct {
	LogPath    string `yaml:"log_path"`
	MaxEntries int    `yaml:"max_entries"`
	Schedule   string `yaml:"schedule"`
}

// Default returns the development configuration: in-memory storage, simulated
// transfers and a 10k GAS vault with a daily 500 GAS allowance per account.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Redis: RedisConfig{
			TTLSeconds: 300,
		},
		Chain: ChainConfig{
			NetworkID:      894710606,
			TimeoutSeconds: 30,
		},
		Vault: VaultConfig{
			Capacity:        1_000_000_000_000,
			Allowance:       50_000_000_000,
			CooldownSeconds: 86_400,
		},
		Auth: AuthConfig{
			TokenExpirySeconds: 3600,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Audit: AuditConfig{
			MaxEntries: 256,
			Schedule:   "@every 1m",
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the configuration from VAULT_CONFIG or config/vault.yaml.
func Load() (*Config, error) {
	path := os.Getenv("VAULT_CONFIG")
	if path == "" {
		path = filepath.Join("config", "vault.yaml")
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates the configuration file at path. Values
// absent from the file keep their defaults; environment overrides apply last.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration, falling back to defaults with
// environment overrides when no config file exists. The result is not
// validated; callers that need guarantees call Validate themselves.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		cfg = Default()
		cfg.applyEnv()
	}
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VAULT_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("VAULT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("NEO_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("AUDIT_LOG_PATH"); v != "" {
		c.Audit.LogPath = v
	}
}

// Validate checks invariants the rest of the service depends on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Vault.Capacity <= 0 {
		return fmt.Errorf("vault capacity must be positive")
	}
	if c.Vault.Allowance <= 0 {
		return fmt.Errorf("vault allowance must be positive")
	}
	if c.Vault.Allowance > c.Vault.Capacity {
		return fmt.Errorf("vault allowance %d exceeds capacity %d", c.Vault.Allowance, c.Vault.Capacity)
	}
	if c.Vault.CooldownSeconds <= 0 {
		return fmt.Errorf("vault cooldown must be positive")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (auth.secret or AUTH_SECRET)")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}
