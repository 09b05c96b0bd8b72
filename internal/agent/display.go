package agent

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// EventKind says what happened to a notification.
type EventKind int

const (
	Shown EventKind = iota
	Closed
)

// Event crosses from the agent to the dashboard. The two sides share
// nothing else.
type Event struct {
	Kind         EventKind
	Notification Notification
	Tag          string
}

// ChannelDisplayer delivers notifications as events on a channel. Display
// blocks until the event is taken or ctx ends.
type ChannelDisplayer struct {
	events chan Event
}

// NewChannelDisplayer returns a displayer with a buffer of size events.
func NewChannelDisplayer(size int) *ChannelDisplayer {
	return &ChannelDisplayer{events: make(chan Event, size)}
}

// Events is the receive side for the dashboard.
func (d *ChannelDisplayer) Events() <-chan Event {
	return d.events
}

func (d *ChannelDisplayer) Display(ctx context.Context, n Notification) error {
	return d.send(ctx, Event{Kind: Shown, Notification: n, Tag: n.Tag})
}

func (d *ChannelDisplayer) Close(ctx context.Context, tag string) error {
	return d.send(ctx, Event{Kind: Closed, Tag: tag})
}

func (d *ChannelDisplayer) send(ctx context.Context, ev Event) error {
	select {
	case d.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PrintDisplayer writes each notification to w and logs it. Notifications
// sharing a tag replace each other, so only the latest is kept as current.
type PrintDisplayer struct {
	mu      sync.Mutex
	w       io.Writer
	logger  *zap.Logger
	current map[string]Notification
}

// NewPrintDisplayer returns a displayer for the standalone agent.
func NewPrintDisplayer(w io.Writer, logger *zap.Logger) *PrintDisplayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrintDisplayer{w: w, logger: logger, current: make(map[string]Notification)}
}

func (d *PrintDisplayer) Display(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, replaced := d.current[n.Tag]
	d.current[n.Tag] = n
	d.logger.Info("notification shown",
		zap.String("tag", n.Tag),
		zap.Bool("replaced", replaced),
		zap.String("title", n.Title),
	)
	_, err := fmt.Fprintf(d.w, "[%s] %s: %s (%s)\n", n.ReceivedAt.Format("15:04:05"), n.Title, n.Body, n.Target())
	return err
}

func (d *PrintDisplayer) Close(_ context.Context, tag string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.current, tag)
	return nil
}

// Current returns the notification showing under tag, if any.
func (d *PrintDisplayer) Current(tag string) (Notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.current[tag]
	return n, ok
}
