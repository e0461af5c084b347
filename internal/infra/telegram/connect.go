package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"golang.org/x/time/rate"
)

// ConnConfig holds MTProto connection settings.
type ConnConfig struct {
	AppID       int     `yaml:"app_id"`
	AppHash     string  `yaml:"app_hash"`
	BotToken    string  `yaml:"bot_token"`
	SessionFile string  `yaml:"session_file"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst   int     `yaml:"rate_burst"`
}

// Validate checks required settings.
func (c ConnConfig) Validate() error {
	var errs []error
	if c.AppID == 0 {
		errs = append(errs, errors.New("telegram.app_id is required"))
	}
	if c.AppHash == "" {
		errs = append(errs, errors.New("telegram.app_hash is required"))
	}
	if c.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required"))
	}
	return errors.Join(errs...)
}

func middlewares(cfg ConnConfig) []telegram.Middleware {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return []telegram.Middleware{
		ratelimit.New(rate.Limit(cfg.RateLimit), burst),
	}
}

// Run connects, authorizes as a bot and calls f with the API. The connection
// is closed when f returns or ctx is done.
func Run(ctx context.Context, cfg ConnConfig, log *slog.Logger, f func(ctx context.Context, api *GotdAPI) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if log == nil {
		log = slog.Default()
	}

	opts := telegram.Options{Middlewares: middlewares(cfg)}
	if cfg.SessionFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SessionFile), 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
		opts.SessionStorage = &session.FileStorage{Path: cfg.SessionFile}
	}

	client := telegram.NewClient(cfg.AppID, cfg.AppHash, opts)
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := client.Auth().Bot(ctx, cfg.BotToken); err != nil {
				return fmt.Errorf("bot auth: %w", err)
			}
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		log.Info("Connected to Telegram", "bot", self.Username, "id", self.ID)

		return f(ctx, NewGotdAPI(client.API()))
	})
}
