package config

import (
	"time"

	redisclient "github.com/vietddude/floodguard/internal/infra/redis"
	"github.com/vietddude/floodguard/internal/infra/rpc"
	"github.com/vietddude/floodguard/internal/infra/storage/postgres"
	"github.com/vietddude/floodguard/internal/infra/telegram"
)

// Backend names accepted by the cache and journal sections.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logging  LoggingConfig       `yaml:"logging"`
	Telegram telegram.ConnConfig `yaml:"telegram"`
	Executor rpc.RetryConfig     `yaml:"executor"`
	Limiter  rpc.LimiterConfig   `yaml:"limiter"`
	Group    telegram.Config     `yaml:"group"`
	Cache    CacheConfig         `yaml:"cache"`
	Journal  JournalConfig       `yaml:"journal"`
	Redis    redisclient.Config  `yaml:"redis"`
	Database postgres.Config     `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// CacheConfig selects where chat metadata and sticker titles are cached.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory, redis
	TTL     time.Duration `yaml:"ttl"`     // 0 = never expire
	Size    int           `yaml:"size"`    // memory backend entry bound
}

// JournalConfig selects where deferred deletions are journaled.
type JournalConfig struct {
	Backend       string        `yaml:"backend"`        // memory, redis, postgres
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 = no sweeping
}

// NeedsRedis reports whether any component is backed by Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Cache.Backend == BackendRedis || c.Journal.Backend == BackendRedis
}

// NeedsDatabase reports whether any component is backed by PostgreSQL.
func (c *AppConfig) NeedsDatabase() bool {
	return c.Journal.Backend == BackendPostgres
}
