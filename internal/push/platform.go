package push

import (
	"context"
	"errors"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Subscription is the W3C PushSubscription shape: an endpoint plus the
// p256dh and auth keys a sender needs to encrypt for it.
type Subscription = webpush.Subscription

// Permission mirrors the notification permission states of a browser.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ErrSubscriptionExists is returned when Subscribe is asked for a different
// application server key than the live subscription was opened with.
var ErrSubscriptionExists = errors.New("subscription exists with a different application server key")

// Platform is the push surface the dashboard consumes: existing subscription
// lookup, permission request and subscription creation.
type Platform interface {
	// Existing returns the current subscription, or nil when there is none.
	Existing(ctx context.Context) (*Subscription, error)
	RequestPermission(ctx context.Context) (Permission, error)
	Subscribe(ctx context.Context, applicationServerKey []byte) (*Subscription, error)
}

// Prompter asks the user whether notifications may be shown.
type Prompter interface {
	Prompt(ctx context.Context) (bool, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context) (bool, error)

// Prompt implements Prompter.
func (f PromptFunc) Prompt(ctx context.Context) (bool, error) {
	return f(ctx)
}
