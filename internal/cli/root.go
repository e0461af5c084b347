package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/floodguard/internal/control"
	"github.com/vietddude/floodguard/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "floodguard",
	Short: "floodguard moderation bot transport",
	Long:  `floodguard connects a Telegram moderation bot through a flood-aware executor and deletes its reports on schedule.`,
	Run:   runFloodguard,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig loads .env and the config file and installs the logger.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func runFloodguard(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := control.NewApp(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize floodguard", "error", err)
		os.Exit(1)
	}

	slog.Info("floodguard started", "config", cfgPath, "health_port", cfg.Server.Port)

	runErr := app.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		slog.Error("floodguard stopped unexpectedly", "error", runErr)
	} else {
		slog.Info("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	if runErr != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
