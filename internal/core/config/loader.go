package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/floodguard/internal/infra/telegram"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Telegram.SessionFile == "" {
		cfg.Telegram.SessionFile = "session/bot.json"
	}
	if cfg.Group.DefaultGroupLink == "" {
		cfg.Group.DefaultGroupLink = telegram.DefaultGroupLink
	}
	if cfg.Group.ReportTTL == 0 {
		cfg.Group.ReportTTL = time.Minute
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = BackendMemory
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 10000
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = BackendMemory
	}
	if cfg.Limiter.IdleTTL == 0 {
		cfg.Limiter.IdleTTL = 10 * time.Minute
	}
}

func (c *AppConfig) validate() error {
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative, got %d", c.Cache.Size)
	}

	switch c.Journal.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown journal backend %q", c.Journal.Backend)
	}

	if c.NeedsRedis() && c.Redis.URL == "" {
		return fmt.Errorf("redis backend selected but redis.url is empty")
	}
	if c.NeedsDatabase() && c.Database.URL == "" {
		return fmt.Errorf("postgres backend selected but database.url is empty")
	}
	return nil
}
