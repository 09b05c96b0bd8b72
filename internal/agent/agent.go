package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Displayer shows and dismisses notifications.
type Displayer interface {
	Display(ctx context.Context, n Notification) error
	Close(ctx context.Context, tag string) error
}

// DisplayFunc adapts a function to a Displayer whose Close does nothing.
type DisplayFunc func(ctx context.Context, n Notification) error

func (f DisplayFunc) Display(ctx context.Context, n Notification) error { return f(ctx, n) }

func (f DisplayFunc) Close(context.Context, string) error { return nil }

// View is one open dashboard window.
type View interface {
	URL() string
	Focus(ctx context.Context) error
}

// Views enumerates open views and opens new ones.
type Views interface {
	List(ctx context.Context) ([]View, error)
	Open(ctx context.Context, target string) error
}

// Agent turns push messages into notifications and notification clicks
// into view navigation. It keeps no state between events.
type Agent struct {
	display Displayer
	views   Views
	logger  *zap.Logger
	now     func() time.Time
}

// New builds an Agent. A nil logger discards log output.
func New(display Displayer, views Views, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{display: display, views: views, logger: logger, now: time.Now}
}

// HandlePush decodes a decrypted push body and displays it.
func (a *Agent) HandlePush(ctx context.Context, payload []byte) (Notification, error) {
	n := DecodePayload(payload, a.now())
	a.logger.Info("push received",
		zap.String("title", n.Title),
		zap.String("url", n.URL),
		zap.Int("payload_bytes", len(payload)),
	)
	if a.display == nil {
		return n, nil
	}
	if err := a.display.Display(ctx, n); err != nil {
		return n, fmt.Errorf("display notification: %w", err)
	}
	return n, nil
}

// HandleClick closes n and either focuses the first open view matching its
// target or, when none matches, opens a new view there.
func (a *Agent) HandleClick(ctx context.Context, n Notification) error {
	if a.display != nil {
		if err := a.display.Close(ctx, n.Tag); err != nil {
			a.logger.Warn("close notification failed", zap.Error(err))
		}
	}
	if a.views == nil {
		return fmt.Errorf("no view registry")
	}

	target := n.Target()
	open, err := a.views.List(ctx)
	if err != nil {
		return fmt.Errorf("list views: %w", err)
	}
	for _, v := range open {
		if MatchesTarget(v.URL(), target) {
			a.logger.Debug("focusing view", zap.String("view", v.URL()), zap.String("target", target))
			return v.Focus(ctx)
		}
	}
	a.logger.Debug("opening view", zap.String("target", target))
	if err := a.views.Open(ctx, target); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	return nil
}

// MatchesTarget reports whether a view at viewURL already shows target.
// Paths match when equal or when the target is a leading run of whole
// segments of the view path; "/" matches every view. When both carry a
// host the hosts must agree.
func MatchesTarget(viewURL, target string) bool {
	v, err := url.Parse(viewURL)
	if err != nil {
		return false
	}
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	if v.Host != "" && t.Host != "" && !strings.EqualFold(v.Host, t.Host) {
		return false
	}

	want := strings.TrimSuffix(t.Path, "/")
	if want == "" {
		return true
	}
	have := strings.TrimSuffix(v.Path, "/")
	return have == want || strings.HasPrefix(have, want+"/")
}
