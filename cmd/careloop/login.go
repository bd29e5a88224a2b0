package main

import (
	"fmt"

	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/ui"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Configure the session for this device",
	Long: `Prompt for the server address, session token, and user id,
verify them against the server, and save them to the global config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL := cfg.Client.ServerURL
		token := cfg.Client.Token
		userID := cfg.Client.UserID

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Server URL").
					Value(&serverURL).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("server URL is required")
						}
						return nil
					}),
				huh.NewInput().
					Title("Session token").
					EchoMode(huh.EchoModePassword).
					Value(&token).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("token is required")
						}
						return nil
					}),
				huh.NewInput().
					Title("User ID").
					Value(&userID).
					Validate(func(s string) error {
						if s == "" {
							return fmt.Errorf("user id is required")
						}
						return nil
					}),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		// Verify the session before persisting it.
		client := gateway.NewClient(serverURL, token)
		if _, err := client.FetchAll(cmd.Context(), userID); err != nil {
			return fmt.Errorf("could not verify session: %w", err)
		}

		cfg.Client.ServerURL = serverURL
		cfg.Client.Token = token
		cfg.Client.UserID = userID
		if err := config.Save(config.GlobalConfigPath(), cfg); err != nil {
			return err
		}

		fmt.Println(ui.Success(fmt.Sprintf("Signed in as %s", userID)))
		fmt.Println(ui.Dim("  session saved to " + config.GlobalConfigPath()))
		return nil
	},
}
