package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/careloop/careloop/internal/backend"
	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/ui"
	"github.com/spf13/cobra"
)

var serveSeedFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference task backend",
	Long: `Run the HTTP backend the devices sync against.

The backend stores tasks in a local SQLite database, authenticates
requests by bearer token, and pushes row-level change events to
connected devices over a websocket feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := config.NewLogger(cfg.Log, "[server] ")

		db, err := backend.OpenDB(cfg.Server.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		seedFile := serveSeedFile
		if seedFile == "" {
			seedFile = cfg.Server.SeedFile
		}
		if seedFile != "" {
			tasks, err := backend.LoadSeed(seedFile)
			if err != nil {
				return fmt.Errorf("failed to load seed file: %w", err)
			}
			if err := db.Seed(cmd.Context(), tasks); err != nil {
				return fmt.Errorf("failed to seed database: %w", err)
			}
			fmt.Println(ui.Success(fmt.Sprintf("Seeded %d tasks from %s", len(tasks), seedFile)))
		}

		srv := backend.NewServer(db, &backend.Config{
			Port:   cfg.Server.Port,
			Tokens: cfg.Server.Tokens,
			Logger: logger,
		})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		fmt.Println(ui.Title("careloop backend"))
		fmt.Printf("  listening on %s\n", ui.Dim(srv.URL()))
		fmt.Printf("  database %s\n", ui.Dim(cfg.Server.DBPath))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		fmt.Println(ui.Dim("shutting down..."))
		return srv.Stop()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveSeedFile, "seed", "", "YAML file of tasks to load at startup")
}
