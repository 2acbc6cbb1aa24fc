package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/client"
	"github.com/santelle/santelle/internal/config"
	"github.com/santelle/santelle/internal/contract"
	"github.com/santelle/santelle/internal/service"
	"github.com/santelle/santelle/internal/wizard"
)

// App holds everything CLI commands and TUI views act on.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	// Client and Cache serve the acting user's session, either from the
	// local store or from a remote server.
	Client client.Client
	Cache  *cache.Manager

	// Notifier is nil when notifications are disabled.
	Notifier wizard.Notifier
	// Relay forwards background events into the running TUI.
	Relay *Relay
	Clock wizard.Clock

	// Store-side services used by `serve` and `user add`.
	Sessions service.TestSessionService
	Logs     service.TestLogService
	Auth     service.AuthService

	// Watch streams server-side change events. Nil in local mode.
	Watch func(ctx context.Context, fn func(contract.Event)) error

	// IsInteractive reports whether stdin is a terminal.
	IsInteractive func() bool

	// ClientErr is set when the session client could not be built, e.g. a
	// remote server is configured but nobody has signed in yet. Commands
	// that need a session fail with it; login and serve still run.
	ClientErr error
}

// offlineAnnotation marks commands that run without a session client.
const offlineAnnotation = "santelle/offline"

func offline() map[string]string {
	return map[string]string{offlineAnnotation: "true"}
}

func (a *App) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock.Now()
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// NewRootCmd creates the top-level "santelle" command and registers all
// subcommands against the provided App. Without a subcommand the TUI starts
// when stdin is a terminal.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "santelle",
		Short:         "Guided home test-kit sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.ClientErr == nil || !cmd.HasParent() || cmd.Name() == "help" {
				return nil
			}
			if cmd.Annotations[offlineAnnotation] != "" {
				return nil
			}
			return app.ClientErr
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.IsInteractive != nil && app.IsInteractive() {
				if app.ClientErr != nil {
					return app.ClientErr
				}
				return runTUI(cmd.Context(), app)
			}
			return cmd.Help()
		},
	}

	root.AddCommand(
		newSessionCmd(app),
		newHistoryCmd(app),
		newServeCmd(app),
		newUserCmd(app),
		newLoginCmd(app),
	)

	return root
}
