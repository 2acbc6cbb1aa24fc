package cli

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/notify"
)

// Relay forwards events raised on background goroutines into the running
// tea.Program. Events raised while no program is attached are dropped.
type Relay struct {
	mu     sync.Mutex
	p      *tea.Program
	logger *zap.Logger
}

var _ notify.Deliverer = (*Relay)(nil)

func NewRelay(logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{logger: logger}
}

// Deliver shows a notification as a banner in the TUI.
func (r *Relay) Deliver(n notify.Notification) {
	r.logger.Info("notification", zap.String("id", n.ID), zap.String("title", n.Title))
	r.Send(notificationMsg{n: n})
}

// Send posts msg without blocking the caller. Program.Send blocks until the
// event loop reads the message, which would deadlock when called from Update.
func (r *Relay) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p == nil {
		return
	}
	go p.Send(msg)
}

func (r *Relay) attach(p *tea.Program) {
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
}

func (r *Relay) detach() {
	r.attach(nil)
}
