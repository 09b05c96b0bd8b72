package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/five82/fridgewatch/internal/config"
	"github.com/five82/fridgewatch/internal/push"
)

// ErrNoLocalSubscription is returned by SendTestPush when nothing is subscribed.
var ErrNoLocalSubscription = errors.New("no local push subscription; run subscribe first")

// TestPush is a notification sent to the local subscription the way the
// fridge server would send it.
type TestPush struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`

	VAPIDPublicKey  string `json:"-"`
	VAPIDPrivateKey string `json:"-"`
	Subscriber      string `json:"-"`
}

// SendTestPush encrypts msg for the stored subscription and posts it to the
// local receiver. The VAPID pair must be the one the subscription was made
// with or the receiver rejects it.
func SendTestPush(ctx context.Context, configPath string, msg TestPush) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, fmt.Errorf("load config: %w", err)
	}
	platform, err := push.NewLocalPlatform(cfg.KeystorePath(), cfg.PushPublicURL, nil)
	if err != nil {
		return 0, fmt.Errorf("open push keystore: %w", err)
	}
	sub, err := platform.Existing(ctx)
	if err != nil {
		return 0, err
	}
	if sub == nil {
		return 0, ErrNoLocalSubscription
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	subscriber := msg.Subscriber
	if subscriber == "" {
		subscriber = "fridgewatch@localhost"
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      &http.Client{Timeout: 10 * time.Second},
		Subscriber:      subscriber,
		VAPIDPublicKey:  msg.VAPIDPublicKey,
		VAPIDPrivateKey: msg.VAPIDPrivateKey,
		TTL:             60,
		Topic:           "fridgewatch-test",
	})
	if err != nil {
		return 0, fmt.Errorf("send push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
