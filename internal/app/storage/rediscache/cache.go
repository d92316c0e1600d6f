// Package rediscache mirrors committed vault read models into Redis so
// sibling services and dashboards can consume account state without calling
// the vault API. Writes are best-effort: the ledger never depends on the
// cache, and the auditor flags any drift between the two.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/gas_vault/internal/vault"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

const keyPrefix = "gas_vault"

// Cache is a thin typed layer over a Redis client.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New connects a cache to the given Redis instance. A non-positive ttl
// defaults to five minutes.
func New(addr, password string, db int, ttl time.Duration, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewDefault("rediscache")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client, ttl: ttl, log: log}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error { return c.client.Close() }

// SetAccount stores an account snapshot under its address.
func (c *Cache) SetAccount(ctx context.Context, view vault.AccountView) {
	payload, err := json.Marshal(view)
	if err != nil {
		c.log.WithError(err).Warn("marshal account snapshot for cache")
		return
	}
	if err := c.client.Set(ctx, accountKey(view.Address), payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("address", view.Address).Warn("cache account snapshot")
	}
}

// GetAccount loads a cached account snapshot. The second return is false on
// a miss or an unreadable value.
func (c *Cache) GetAccount(ctx context.Context, address string) (vault.AccountView, bool) {
	raw, err := c.client.Get(ctx, accountKey(address)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).WithField("address", address).Warn("read cached account snapshot")
		}
		return vault.AccountView{}, false
	}
	var view vault.AccountView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return vault.AccountView{}, false
	}
	return view, true
}

// InvalidateAccount drops a cached account snapshot.
func (c *Cache) InvalidateAccount(ctx context.Context, address string) {
	if err := c.client.Del(ctx, accountKey(address)).Err(); err != nil {
		c.log.WithError(err).WithField("address", address).Warn("invalidate cached account")
	}
}

// SetStats stores the vault-wide accounting snapshot.
func (c *Cache) SetStats(ctx context.Context, stats vault.StatsView) {
	payload, err := json.Marshal(stats)
	if err != nil {
		c.log.WithError(err).Warn("marshal stats snapshot for cache")
		return
	}
	if err := c.client.Set(ctx, statsKey(), payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("cache stats snapshot")
	}
}

// GetStats loads the cached accounting snapshot.
func (c *Cache) GetStats(ctx context.Context) (vault.StatsView, bool) {
	raw, err := c.client.Get(ctx, statsKey()).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("read cached stats snapshot")
		}
		return vault.StatsView{}, false
	}
	var stats vault.StatsView
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return vault.StatsView{}, false
	}
	return stats, true
}

func accountKey(address string) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, strings.ToLower(strings.TrimSpace(address)))
}

func statsKey() string { return keyPrefix + ":stats" }
