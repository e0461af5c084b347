package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/floodguard/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deferred deletions waiting in the journal",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	pending, err := backends.Journal.Pending(ctx)
	if err != nil {
		slog.Error("Failed to list deferred deletions", "error", err)
		os.Exit(1)
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tCHAT\tMESSAGES\tDUE IN")

	for _, d := range pending {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%v\t%s\n", d.ID, d.ChatID, d.MessageIDs, d.Remaining(now).Round(time.Second))
	}
	_ = w.Flush()
}
