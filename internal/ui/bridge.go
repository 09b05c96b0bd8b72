package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/fridgewatch/internal/agent"
	"github.com/five82/fridgewatch/internal/push"
)

// Bridge carries requests from background goroutines into the UI loop. It
// is the permission Prompter for the push platform and the dashboard's View
// in the agent's registry.
type Bridge struct {
	msgs chan tea.Msg

	mu    sync.Mutex
	route string
}

var (
	_ push.Prompter = (*Bridge)(nil)
	_ agent.View    = (*Bridge)(nil)
)

// NewBridge returns a bridge whose dashboard starts at "/".
func NewBridge() *Bridge {
	return &Bridge{msgs: make(chan tea.Msg, 8), route: "/"}
}

type permissionRequestMsg struct {
	reply chan<- bool
}

type focusMsg struct{}

// Prompt shows the permission modal and waits for the answer.
func (b *Bridge) Prompt(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case b.msgs <- permissionRequestMsg{reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// URL is the dashboard's current route.
func (b *Bridge) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.route
}

// Focus asks the dashboard to come forward.
func (b *Bridge) Focus(ctx context.Context) error {
	select {
	case b.msgs <- focusMsg{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) setRoute(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.route = route
}

func (b *Bridge) wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.msgs:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}
