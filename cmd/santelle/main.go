package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/auth"
	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/cli"
	"github.com/santelle/santelle/internal/client"
	"github.com/santelle/santelle/internal/config"
	"github.com/santelle/santelle/internal/db"
	"github.com/santelle/santelle/internal/logging"
	"github.com/santelle/santelle/internal/notify"
	"github.com/santelle/santelle/internal/repository"
	"github.com/santelle/santelle/internal/service"
	"github.com/santelle/santelle/internal/wizard"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: "json", File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Open database
	database, dialect, err := db.Open(cfg.Store.Driver, cfg.StoreTarget())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Wire repositories
	sessionRepo := repository.NewSQLSessionRepo(database, dialect)
	logRepo := repository.NewSQLTestLogRepo(database, dialect)
	userRepo := repository.NewSQLUserRepo(database, dialect)

	// Wire unit of work for transactional operations
	uow := db.NewUnitOfWork(database, dialect)

	// Wire services
	observer := service.NewZapUseCaseObserver(logger)
	sessionSvc := service.NewTestSessionService(sessionRepo, logRepo, uow, observer)
	logSvc := service.NewTestLogService(logRepo, sessionRepo, uow, observer)
	authSvc := service.NewAuthService(userRepo,
		auth.NewBcryptHasher(0),
		auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		observer,
	)

	app := &cli.App{
		Config:   cfg,
		Logger:   logger,
		Clock:    wizard.SystemClock{},
		Sessions: sessionSvc,
		Logs:     logSvc,
		Auth:     authSvc,
	}

	// Session client: the local store, or a remote server when configured.
	if cfg.IsRemote() {
		remote, err := client.NewHTTP(client.HTTPConfig{
			BaseURL:    cfg.Remote.URL,
			Token:      cfg.Remote.Token,
			Timeout:    cfg.RemoteTimeout(),
			MaxRetries: cfg.Remote.MaxRetries,
		}, logger)
		if err != nil {
			app.ClientErr = fmt.Errorf("connecting to %s (run `santelle login`): %w", cfg.Remote.URL, err)
		} else {
			app.Client = remote
			app.Watch = remote.Watch
		}
	} else {
		app.Client = client.NewLocal(sessionSvc, logSvc, cfg.Store.LocalUser)
	}

	// Cache persistence
	var persister cache.Persister = repository.NewSQLSnapshotRepo(database, dialect)
	if cfg.Cache.Backend == "redis" {
		rdb, err := repository.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		persister = repository.NewRedisSnapshotRepo(rdb, cfg.Cache.TTL)
	}

	// Notifications are shown by the TUI through the relay.
	app.Relay = cli.NewRelay(logger.Named("relay"))
	scheduler := notify.NewScheduler(app.Relay, logger.Named("notify"))
	defer scheduler.Close()
	app.Notifier = scheduler

	if app.Client != nil {
		app.Cache = cache.NewManager(app.Client, persister, logger.Named("cache"))
		defer app.Cache.Close()
		if res := app.Cache.Restore(ctx); res.Err != nil {
			logger.Warn("restoring cached session", zap.Error(res.Err))
		}
	}

	// Detect interactive terminal for the TUI entrypoint.
	app.IsInteractive = func() bool {
		return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	}

	// Execute root command
	rootCmd := cli.NewRootCmd(app)
	return rootCmd.ExecuteContext(ctx)
}
