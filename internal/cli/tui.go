package cli

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/cache"
	"github.com/santelle/santelle/internal/contract"
)

// watchBackoff is the pause before reconnecting a dropped event stream.
const watchBackoff = 3 * time.Second

// runTUI starts the full-screen wizard and blocks until the user quits.
func runTUI(ctx context.Context, app *App) error {
	if app.Relay == nil {
		app.Relay = NewRelay(app.logger())
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newAppModel(ctx, app), tea.WithAltScreen(), tea.WithContext(ctx))
	app.Relay.attach(p)
	defer app.Relay.detach()

	unsubscribe := app.Cache.Subscribe(func(cache.State) {
		app.Relay.Send(cacheChangedMsg{})
	})
	defer unsubscribe()

	if app.Watch != nil {
		go watchRemote(ctx, app)
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// watchRemote re-hydrates the cache whenever the server reports a change to
// one of the actor's sessions, reconnecting until ctx is done.
func watchRemote(ctx context.Context, app *App) {
	logger := app.logger().Named("watch")
	for {
		err := app.Watch(ctx, func(ev contract.Event) {
			logger.Debug("session event", zap.String("type", ev.Type), zap.String("session", ev.SessionID))
			if res := app.Cache.HydrateFromServer(ctx); res.Err != nil {
				logger.Warn("refresh after event failed", zap.Error(res.Err))
			}
		})
		if ctx.Err() != nil {
			return
		}
		logger.Warn("event stream closed", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchBackoff):
		}
	}
}
