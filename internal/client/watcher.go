package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/contract"
)

const watchReadTimeout = 90 * time.Second

// Watch subscribes to the server's session change stream and calls fn for
// every event until ctx is cancelled or the connection drops.
func (c *HTTP) Watch(ctx context.Context, fn func(contract.Event)) error {
	wsURL := websocketURL(c.cfg.BaseURL) + "/events"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("watch: %w", ErrUnauthorized)
		}
		return fmt.Errorf("watch: %w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller goes away.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var ev contract.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Info("event stream closed", zap.Error(err))
			return fmt.Errorf("watch: %w: %v", ErrUnavailable, err)
		}
		conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
		fn(ev)
	}
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
