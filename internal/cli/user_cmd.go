package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/santelle/santelle/internal/cli/formatter"
	"github.com/santelle/santelle/internal/client"
	"github.com/santelle/santelle/internal/config"
)

func newUserCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts of the local store",
	}
	cmd.AddCommand(newUserAddCmd(app))
	return cmd
}

func newUserAddCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:         "add",
		Annotations: offline(),
		Short:       "Create an account that can sign in to `santelle serve`",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Auth == nil {
				return errors.New("user add: auth service is not configured")
			}
			if err := promptCredentials(app, &email, &password); err != nil {
				return err
			}
			u, err := app.Auth.Register(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	return cmd
}

func newLoginCmd(app *App) *cobra.Command {
	var url, email, password string

	cmd := &cobra.Command{
		Use:         "login",
		Annotations: offline(),
		Short:       "Sign in to a santelle server and save the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" && app.Config != nil {
				url = app.Config.Remote.URL
			}
			if strings.TrimSpace(url) == "" {
				return errors.New("login: --url or remote.url is required")
			}
			if err := promptCredentials(app, &email, &password); err != nil {
				return err
			}
			resp, err := client.Login(cmd.Context(), url, email, password)
			if err != nil {
				return err
			}

			tokenFile := config.DefaultConfig().Remote.TokenFile
			if app.Config != nil && app.Config.Remote.TokenFile != "" {
				tokenFile = app.Config.Remote.TokenFile
			}
			if err := config.WriteToken(tokenFile, resp.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s. Token saved to %s\n",
				formatter.Bold(email), formatter.Dim(tokenFile))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (default from config)")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	return cmd
}

// promptCredentials fills missing credentials with a huh form when running
// on a terminal.
func promptCredentials(app *App, email, password *string) error {
	if *email != "" && *password != "" {
		return nil
	}
	if app.IsInteractive == nil || !app.IsInteractive() {
		return errors.New("--email and --password are required when not on a terminal")
	}
	return credentialsForm(email, password).Run()
}

func credentialsForm(email, password *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("enter an email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	).WithTheme(santelleHuhTheme())
}
