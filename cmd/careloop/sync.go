package main

import (
	"fmt"
	"time"

	"github.com/careloop/careloop/internal/ui"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass with the server",
	Long: `Push local edits, pull remote ones, and resolve conflicts by
freshest timestamp. Equivalent to what the daemon does on each
trigger, run once in the foreground.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}

		start := time.Now()
		if err := store.SyncWithServer(cmd.Context(), cfg.Client.UserID); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		tasks, err := store.GetTasks(cmd.Context(), cfg.Client.UserID)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Synced %d tasks in %v", len(tasks), time.Since(start).Round(time.Millisecond))))
		return nil
	},
}
