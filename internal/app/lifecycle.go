package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/push"
	"github.com/five82/fridgewatch/internal/settings"
	"github.com/five82/fridgewatch/internal/state"
)

var (
	// ErrPermissionDenied is returned when the user refuses notifications.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrMissingKey is returned when /status has not supplied a VAPID key.
	ErrMissingKey = errors.New("server did not provide a push public key")
	// ErrNotSubscribed is returned by operations that need an endpoint.
	ErrNotSubscribed = errors.New("notifications are not enabled")
	// ErrSubscribeInProgress guards against a second concurrent subscribe.
	ErrSubscribeInProgress = errors.New("subscription already in progress")
)

// Startup asks the platform for an existing subscription. When one exists
// the controller moves straight to Subscribed and loads its rules; when none
// exists it stays in NoSubscription and makes no rule request.
func (c *Controller) Startup(ctx context.Context) error {
	if c.platform == nil {
		c.store.SetSubscription(state.NoSubscription, "")
		return nil
	}
	sub, err := c.platform.Existing(ctx)
	if err != nil {
		c.logger.Warn("existing subscription lookup failed", zap.Error(err))
		c.store.SetNotice("Push unavailable: "+err.Error(), true)
		return fmt.Errorf("lookup subscription: %w", err)
	}
	if sub == nil {
		c.store.SetSubscription(state.NoSubscription, "")
		return nil
	}
	c.logger.Info("existing push subscription", zap.String("endpoint", sub.Endpoint))
	c.store.SetSubscription(state.Subscribed, sub.Endpoint)
	return c.LoadRules(ctx, sub.Endpoint)
}

// LoadRules fetches the server-held rules for endpoint. A missing server
// record means no rules yet and is not an error.
func (c *Controller) LoadRules(ctx context.Context, endpoint string) error {
	rules, err := c.backend.FetchRules(ctx, endpoint)
	if errors.Is(err, api.ErrNotFound) {
		c.logger.Info("no server rules for subscriber yet", zap.String("endpoint", endpoint))
		c.store.SetRules(false, nil)
		return nil
	}
	if err != nil {
		c.logger.Warn("load rules failed", zap.Error(err))
		c.store.SetNotice("Could not load notification settings", true)
		return fmt.Errorf("load rules: %w", err)
	}
	c.store.SetRules(rules.IsActive, rules.Devices)
	return nil
}

// Subscribe runs the opt-in flow: permission, subscription, registration.
// The controller reports Subscribed only after the server acknowledged the
// registration; any failure returns it to NoSubscription with a notice.
func (c *Controller) Subscribe(ctx context.Context) error {
	if !c.subscribing.CompareAndSwap(false, true) {
		return ErrSubscribeInProgress
	}
	defer c.subscribing.Store(false)

	if c.platform == nil {
		return c.failSubscribe(fmt.Errorf("push platform unavailable"))
	}
	snap := c.store.Snapshot()
	if snap.Subscription == state.Subscribed {
		return nil
	}
	if snap.VAPIDKey == "" {
		return c.failSubscribe(ErrMissingKey)
	}

	c.store.SetSubscription(state.PermissionPending, "")
	perm, err := c.platform.RequestPermission(ctx)
	if err != nil {
		return c.failSubscribe(fmt.Errorf("request permission: %w", err))
	}
	if perm != push.PermissionGranted {
		return c.failSubscribe(ErrPermissionDenied)
	}

	c.store.SetSubscription(state.Registering, "")
	serverKey, err := push.DecodeKey(snap.VAPIDKey)
	if err != nil {
		return c.failSubscribe(err)
	}
	sub, err := c.platform.Subscribe(ctx, serverKey)
	if err != nil {
		return c.failSubscribe(fmt.Errorf("open subscription: %w", err))
	}
	if err := c.backend.RegisterSubscriber(ctx, *sub); err != nil {
		return c.failSubscribe(fmt.Errorf("register subscription: %w", err))
	}

	c.logger.Info("push subscription registered", zap.String("endpoint", sub.Endpoint))
	c.store.SetSubscription(state.Subscribed, sub.Endpoint)
	c.store.SetNotice("Notifications enabled", false)
	_ = c.LoadRules(ctx, sub.Endpoint)
	return nil
}

func (c *Controller) failSubscribe(err error) error {
	c.logger.Warn("subscribe failed", zap.Error(err))
	c.store.SetSubscription(state.NoSubscription, "")
	msg := "Subscription failed: " + err.Error()
	if errors.Is(err, ErrPermissionDenied) {
		msg = "Notifications were blocked. Allow them to receive alerts."
	}
	c.store.SetNotice(msg, true)
	return err
}

// SaveSettings writes every draft row and, only if all writes succeed,
// replaces the rule cache and settings view with the saved values.
func (c *Controller) SaveSettings(ctx context.Context, draft settings.Draft) error {
	snap := c.store.Snapshot()
	if snap.Subscription != state.Subscribed || snap.Endpoint == "" {
		c.store.SetNotice("Enable notifications before saving settings", true)
		return ErrNotSubscribed
	}
	saved, err := settings.Save(ctx, c.backend, snap.Endpoint, draft)
	if err != nil {
		c.logger.Warn("save settings failed", zap.Error(err))
		c.store.SetNotice("Save failed: "+err.Error(), true)
		return err
	}
	c.store.CommitSettings(draft.IsActive, saved)
	c.store.SetNotice("Settings saved", false)
	return nil
}
