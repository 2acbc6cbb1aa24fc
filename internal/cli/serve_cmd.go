package cli

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:         "serve",
		Annotations: offline(),
		Short:       "Serve the session store over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Sessions == nil || app.Logs == nil || app.Auth == nil {
				return errors.New("serve: store services are not configured")
			}
			if app.Config == nil || strings.TrimSpace(app.Config.Auth.JWTSecret) == "" {
				return errors.New("serve: auth.jwt_secret (SANTELLE_AUTH_JWT_SECRET) is required")
			}
			if addr == "" {
				addr = app.Config.Server.Addr
			}

			logger := app.logger().Named("server")
			hub := server.NewHub(logger)
			defer hub.Close()
			h := server.NewHandler(app.Sessions, app.Logs, app.Auth, hub, logger)
			srv := server.NewServer(addr, server.NewRouter(h, hub, logger), logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger.Info("serving", zap.String("addr", addr), zap.String("store", app.Config.Store.Driver))
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
