package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/floodguard/internal/control"
	"github.com/vietddude/floodguard/internal/core/config"
	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/telegram"
)

var (
	reportTTL     time.Duration
	reportReplyTo int
)

var reportCmd = &cobra.Command{
	Use:   "report [chat_id] [text]",
	Short: "Send a report message that deletes itself after --ttl",
	Args:  cobra.ExactArgs(2),
	Run:   runReport,
}

func init() {
	reportCmd.Flags().DurationVar(&reportTTL, "ttl", 0, "delete the report after this long (default group.report_ttl)")
	reportCmd.Flags().IntVar(&reportReplyTo, "reply-to", 0, "message id to reply to")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) {
	raw, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid chat id: %v\n", err)
		os.Exit(1)
	}
	chat := domain.ChatID(raw)
	text := args[1]

	cfg := loadConfig()
	ttl := reportTTL
	if ttl <= 0 {
		ttl = cfg.Group.ReportTTL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := control.NewApp(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize floodguard", "error", err)
		os.Exit(1)
	}

	runErr := telegram.Run(ctx, cfg.Telegram, slog.Default(), func(ctx context.Context, api *telegram.GotdAPI) error {
		client := app.Bind(api)

		out := client.SendReportMessage(ctx, chat, text, domain.MessageID(reportReplyTo), nil, ttl)
		msg, ok := out.Get()
		if !ok {
			return fmt.Errorf("report not sent: %s: %w", out.Kind, out.Err)
		}
		fmt.Printf("Sent report %d to %d, deleting in %s\n", msg.ID, chat, ttl)

		// An in-memory journal dies with this process, so stay until the
		// deletion has run. Persistent journals are swept by the service.
		if cfg.Journal.Backend != config.BackendMemory {
			return nil
		}
		waitCtx, waitCancel := context.WithTimeout(ctx, ttl+30*time.Second)
		defer waitCancel()
		return app.Scheduler().Drain(waitCtx)
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}

	if runErr != nil {
		slog.Error("Report failed", "error", runErr)
		os.Exit(1)
	}
}
