package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/floodguard/internal/control"
)

var purgeDeletionsCmd = &cobra.Command{
	Use:   "purge-deletions",
	Short: "Drop every deferred deletion from the journal",
	Args:  cobra.NoArgs,
	Run:   runPurgeDeletions,
}

func init() {
	rootCmd.AddCommand(purgeDeletionsCmd)
}

func runPurgeDeletions(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	backends, err := control.OpenBackends(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open journal", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = backends.Close()
	}()

	n, err := backends.Journal.Clear(ctx)
	if err != nil {
		slog.Error("Failed to purge deferred deletions", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully purged %d deferred deletions from the %s journal\n", n, cfg.Journal.Backend)
}
