// careloop is the command-line entry point for the task sync layer:
// it runs the reference backend, the device sync daemon, and the
// task-management commands used during development.
package main

import (
	"fmt"
	"os"

	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/ui"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "careloop",
	Short: "Local-first task sync for the careloop health tracker",
	Long: `careloop keeps a user's health tasks available offline and
reconciled with the server in the background.

Writes land in an encrypted on-device store first, so the app stays
responsive with no connectivity. A sync daemon pushes local edits,
pulls remote ones, and resolves conflicts by freshest timestamp.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFile(cfgFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.careloop/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(deleteCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err))
		os.Exit(1)
	}
}
