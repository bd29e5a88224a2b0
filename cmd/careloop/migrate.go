package main

import (
	"fmt"

	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/localstore"
	"github.com/careloop/careloop/internal/ui"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move legacy plain storage into the encrypted store",
	Long: `Move task data from the previous plain-file storage generation
into the encrypted store, then purge the legacy copies.

The migration runs automatically before the first read on mobile;
this command runs it explicitly and reports what moved. Safe to run
any number of times.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := config.NewLogger(cfg.Log, "[migrate] ")

		current, legacy, err := openDeviceStores(cfg)
		if err != nil {
			return err
		}

		res, err := localstore.Migrate(localstore.MigrateOptions{
			Legacy:  legacy,
			Current: current,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("migration failed (safe to retry): %w", err)
		}

		if res.AlreadyDone {
			fmt.Println(ui.Dim("Migration already complete; nothing to do."))
			return nil
		}
		if res.TasksMoved {
			fmt.Println(ui.Success("Migration complete: legacy tasks moved into the encrypted store"))
		} else {
			fmt.Println(ui.Success("Migration complete: no legacy data found"))
		}
		if res.SyncTimeMoved {
			fmt.Println(ui.Dim("  last sync time carried over"))
		}
		return nil
	},
}
