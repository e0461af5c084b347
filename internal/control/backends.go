package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/floodguard/internal/core/config"
	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/cache"
	redisclient "github.com/vietddude/floodguard/internal/infra/redis"
	"github.com/vietddude/floodguard/internal/infra/storage"
	"github.com/vietddude/floodguard/internal/infra/storage/memory"
	"github.com/vietddude/floodguard/internal/infra/storage/postgres"
)

// Backends holds the storage connections selected by configuration.
type Backends struct {
	Redis   *redisclient.Client
	DB      *postgres.DB
	Journal storage.DeletionJournal
}

// OpenBackends connects the backends the configuration asks for and builds
// the deletion journal. PostgreSQL migrations are applied on connect.
func OpenBackends(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Backends, error) {
	if log == nil {
		log = slog.Default()
	}
	b := &Backends{}

	if cfg.NeedsRedis() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		b.Redis = client
	}

	if cfg.NeedsDatabase() {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		b.DB = db
		if err := db.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
	}

	switch cfg.Journal.Backend {
	case config.BackendRedis:
		b.Journal = redisclient.NewDeletionJournal(b.Redis)
	case config.BackendPostgres:
		b.Journal = postgres.NewDeletionRepo(b.DB)
	default:
		b.Journal = memory.NewDeletionRepo(memory.NewMemoryStorage())
	}
	log.Info("Deletion journal ready", "backend", cfg.Journal.Backend)

	return b, nil
}

// Caches builds the chat metadata and sticker title caches.
func (b *Backends) Caches(cfg config.CacheConfig) (cache.Store[domain.Chat], cache.Store[string]) {
	if cfg.Backend == config.BackendRedis && b.Redis != nil {
		return redisclient.NewCache[domain.Chat](b.Redis, "chat", cfg.TTL),
			redisclient.NewCache[string](b.Redis, "sticker", cfg.TTL)
	}
	return cache.NewMemory[domain.Chat](cfg.Size, cfg.TTL), cache.NewMemory[string](cfg.Size, cfg.TTL)
}

// Close closes every open connection.
func (b *Backends) Close() error {
	var errs []error
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}
