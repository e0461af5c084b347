package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/floodguard/internal/core/config"
	"github.com/vietddude/floodguard/internal/core/worker"
	"github.com/vietddude/floodguard/internal/health"
	"github.com/vietddude/floodguard/internal/infra/rpc"
	"github.com/vietddude/floodguard/internal/infra/telegram"
	"github.com/vietddude/floodguard/internal/metrics"
	"github.com/vietddude/floodguard/internal/scheduler"
)

// App is the main application struct that manages the bot lifecycle.
type App struct {
	cfg          *config.AppConfig
	backends     *Backends
	monitor      *rpc.FloodMonitor
	exec         *rpc.Executor
	sched        *scheduler.Scheduler
	sweeper      *worker.Sweeper
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	mu     sync.Mutex
	client *telegram.Client
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Initialize Storage
	backends, err := OpenBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// 2. Initialize Executor
	monitor := rpc.NewFloodMonitor()
	opts := []rpc.Option{
		rpc.WithRetryConfig(cfg.Executor),
		rpc.WithObserver(monitor),
		rpc.WithObserver(metrics.RPCObserver{}),
		rpc.WithLogger(log),
	}
	if limiter := rpc.NewKeyedLimiter(cfg.Limiter); limiter != nil {
		opts = append(opts, rpc.WithLimiter(limiter))
	}
	exec := rpc.NewExecutor(opts...)

	// 3. Initialize Scheduler
	sched := scheduler.New(backends.Journal, scheduler.WithLogger(log))
	sweeper := worker.NewSweeper(sched, cfg.Journal.SweepInterval, log)

	// 4. Initialize Health Monitor
	healthMon := health.NewMonitor(monitor, backends.Journal)
	if backends.Redis != nil {
		healthMon.AddComponent("redis", backends.Redis)
	}
	if backends.DB != nil {
		healthMon.AddComponent("postgres", backends.DB)
	}

	return &App{
		cfg:          cfg,
		backends:     backends,
		monitor:      monitor,
		exec:         exec,
		sched:        sched,
		sweeper:      sweeper,
		healthMon:    healthMon,
		healthServer: health.NewServer(healthMon, cfg.Server.Port),
		log:          log,
	}, nil
}

// Scheduler returns the deferred work scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// Client returns the platform client, or nil before the bot is connected.
func (a *App) Client() *telegram.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

// Bind builds the platform client on top of api and wires it into the
// scheduler.
func (a *App) Bind(api telegram.API) *telegram.Client {
	chats, stickers := a.backends.Caches(a.cfg.Cache)
	client := telegram.NewClient(api, a.exec, a.sched,
		telegram.WithChatCache(chats),
		telegram.WithStickerCache(stickers),
		telegram.WithConfig(a.cfg.Group),
		telegram.WithLogger(a.log),
	)

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	return client
}

// Run serves the health endpoints, connects the bot and blocks until ctx is
// done or the connection fails.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	return telegram.Run(ctx, a.cfg.Telegram, a.log, func(ctx context.Context, api *telegram.GotdAPI) error {
		return a.Serve(ctx, api)
	})
}

// Serve binds api, restores journaled deletions, starts the sweeper and
// blocks until ctx is done.
func (a *App) Serve(ctx context.Context, api telegram.API) error {
	a.Bind(api)

	restored, err := a.sched.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore deletions: %w", err)
	}
	a.log.Info("Restored deferred deletions", "count", restored)

	go a.sweeper.Start(ctx)

	<-ctx.Done()
	return nil
}

// Stop stops the scheduler, the health server and closes the backends.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping floodguard...")

	var errs []error
	if err := a.sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop health server: %w", err))
	}
	if err := a.backends.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
