package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/daemon"
	"github.com/careloop/careloop/internal/feed"
	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/localstore"
	tasksync "github.com/careloop/careloop/internal/sync"
	"github.com/careloop/careloop/internal/ui"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the device sync daemon",
	Long: `Run the long-lived sync process for this device.

The daemon watches the local store for app writes, listens to the
backend's change feed for remote edits, and reconciles after a short
quiet period so bursts of edits collapse into one pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(cfg); err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Log, "[daemon] ")

		current, legacy, err := openDeviceStores(cfg)
		if err != nil {
			return err
		}

		// Move any previous-generation data before the first read.
		if _, err := localstore.Migrate(localstore.MigrateOptions{
			Legacy:  legacy,
			Current: current,
			Logger:  logger,
		}); err != nil {
			logger.Printf("warning: storage migration incomplete: %v", err)
		}

		store := localstore.NewTaskStore(current, logger)
		remote := gateway.NewClient(cfg.Client.ServerURL, cfg.Client.Token)
		engine := tasksync.New(store, remote, logger)

		storeDir := filepath.Join(cfg.Client.DataDir, "secure")
		d, err := daemon.NewWithConfig(engine, cfg.Client.UserID, storeDir, &daemon.Config{
			DebounceInterval: cfg.DebounceInterval(),
			FullSyncInterval: cfg.FullSyncInterval(),
			Feed: feed.Config{
				BaseURL: cfg.Client.ServerURL,
				Token:   cfg.Client.Token,
				Logger:  logger,
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}

		fmt.Println(ui.Title("careloop daemon"))
		fmt.Printf("  user %s\n", ui.Dim(cfg.Client.UserID))
		fmt.Printf("  server %s\n", ui.Dim(cfg.Client.ServerURL))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return d.Start(ctx)
	},
}
