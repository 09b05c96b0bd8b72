package push

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
)

// Registration is the receiving side of a subscription: everything needed
// to authenticate and decrypt messages sent to its endpoint.
type Registration struct {
	Token                string
	Endpoint             string
	PrivateKey           *ecdh.PrivateKey
	Auth                 []byte
	ApplicationServerKey []byte
	CreatedAt            time.Time
}

// Subscription returns the public half handed to the API server.
func (r Registration) Subscription() *Subscription {
	sub := &Subscription{Endpoint: r.Endpoint}
	sub.Keys.P256dh = EncodeKey(r.PrivateKey.PublicKey().Bytes())
	sub.Keys.Auth = EncodeKey(r.Auth)
	return sub
}

// LocalPlatform is a self-hosted push surface. Its endpoints point at the
// agent receiver under PublicURL and its state lives in a TOML keystore.
type LocalPlatform struct {
	mu        sync.Mutex
	path      string
	publicURL string
	prompter  Prompter

	loaded     bool
	permission Permission
	reg        *Registration
	dropped    []string
}

var (
	// ErrUnknownEndpoint is returned by Lookup for tokens never issued here.
	ErrUnknownEndpoint = errors.New("unknown push endpoint")
	// ErrGone is returned by Lookup for tokens that were unsubscribed.
	ErrGone = errors.New("push subscription gone")
)

// Ensure LocalPlatform implements Platform at compile time.
var _ Platform = (*LocalPlatform)(nil)

// NewLocalPlatform returns a platform persisting to path. publicURL is the
// externally reachable base of the push receiver.
func NewLocalPlatform(path, publicURL string, prompter Prompter) (*LocalPlatform, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("keystore path is empty")
	}
	base := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if _, err := origin(base); err != nil {
		return nil, fmt.Errorf("push public url: %w", err)
	}
	return &LocalPlatform{path: path, publicURL: base, prompter: prompter}, nil
}

// SetPrompter replaces the permission prompter.
func (p *LocalPlatform) SetPrompter(prompter Prompter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompter = prompter
}

// Existing implements Platform.
func (p *LocalPlatform) Existing(ctx context.Context) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return nil, err
	}
	if p.reg == nil {
		return nil, nil
	}
	return p.reg.Subscription(), nil
}

// Permission reports the stored permission without prompting.
func (p *LocalPlatform) Permission() (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return PermissionDefault, err
	}
	return p.permission, nil
}

// RequestPermission implements Platform. A decided permission is returned
// as is; otherwise the prompter is asked and the answer is persisted.
func (p *LocalPlatform) RequestPermission(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	if err := p.loadLocked(); err != nil {
		p.mu.Unlock()
		return PermissionDefault, err
	}
	if p.permission != PermissionDefault {
		perm := p.permission
		p.mu.Unlock()
		return perm, nil
	}
	prompter := p.prompter
	p.mu.Unlock()

	if prompter == nil {
		return PermissionDefault, nil
	}
	// The prompt may block on user input, so it runs without the lock.
	allowed, err := prompter.Prompt(ctx)
	if err != nil {
		return PermissionDefault, fmt.Errorf("permission prompt: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = PermissionDenied
	if allowed {
		p.permission = PermissionGranted
	}
	if err := p.saveLocked(); err != nil {
		return p.permission, err
	}
	return p.permission, nil
}

// ResetPermission returns the platform to the undecided state.
func (p *LocalPlatform) ResetPermission() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return err
	}
	p.permission = PermissionDefault
	return p.saveLocked()
}

// Subscribe implements Platform. An existing subscription opened with the
// same key is returned unchanged.
func (p *LocalPlatform) Subscribe(ctx context.Context, applicationServerKey []byte) (*Subscription, error) {
	if len(applicationServerKey) == 0 {
		return nil, fmt.Errorf("application server key required")
	}
	if _, err := ecdh.P256().NewPublicKey(applicationServerKey); err != nil {
		return nil, fmt.Errorf("application server key: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return nil, err
	}
	if p.permission != PermissionGranted {
		return nil, fmt.Errorf("notification permission is %s", p.permission)
	}
	if p.reg != nil {
		if !bytes.Equal(p.reg.ApplicationServerKey, applicationServerKey) {
			return nil, ErrSubscriptionExists
		}
		return p.reg.Subscription(), nil
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate subscription key: %w", err)
	}
	auth := make([]byte, authLen)
	if _, err := rand.Read(auth); err != nil {
		return nil, fmt.Errorf("generate auth secret: %w", err)
	}
	token := uuid.NewString()
	reg := &Registration{
		Token:                token,
		Endpoint:             p.publicURL + "/push/" + token,
		PrivateKey:           priv,
		Auth:                 auth,
		ApplicationServerKey: append([]byte(nil), applicationServerKey...),
		CreatedAt:            time.Now().UTC(),
	}
	p.reg = reg
	if err := p.saveLocked(); err != nil {
		p.reg = nil
		return nil, err
	}
	return reg.Subscription(), nil
}

// Unsubscribe drops the current subscription. Later pushes to its endpoint
// are answered with 410 Gone by the receiver.
func (p *LocalPlatform) Unsubscribe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return err
	}
	if p.reg == nil {
		return nil
	}
	prev, prevDropped := p.reg, p.dropped
	p.dropped = append(p.dropped, p.reg.Token)
	p.reg = nil
	if err := p.saveLocked(); err != nil {
		p.reg, p.dropped = prev, prevDropped
		return err
	}
	return nil
}

// Lookup finds the registration for an endpoint token. The keystore is
// re-read so that a receiver in another process sees new subscriptions.
func (p *LocalPlatform) Lookup(token string) (Registration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	if err := p.loadLocked(); err != nil {
		return Registration{}, err
	}
	if p.reg != nil && p.reg.Token == token {
		return *p.reg, nil
	}
	for _, gone := range p.dropped {
		if gone == token {
			return Registration{}, ErrGone
		}
	}
	return Registration{}, ErrUnknownEndpoint
}

type keystoreFile struct {
	Permission   string              `toml:"permission"`
	Subscription *storedSubscription `toml:"subscription,omitempty"`
	Dropped      []string            `toml:"dropped,omitempty"`
}

type storedSubscription struct {
	Token                string    `toml:"token"`
	Endpoint             string    `toml:"endpoint"`
	PrivateKey           string    `toml:"private_key"`
	Auth                 string    `toml:"auth"`
	ApplicationServerKey string    `toml:"application_server_key"`
	CreatedAt            time.Time `toml:"created_at"`
}

func (p *LocalPlatform) loadLocked() error {
	if p.loaded {
		return nil
	}
	p.permission = PermissionDefault
	p.reg = nil
	p.dropped = nil

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.loaded = true
			return nil
		}
		return fmt.Errorf("read keystore: %w", err)
	}

	var raw keystoreFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse keystore: %w", err)
	}
	switch Permission(raw.Permission) {
	case PermissionGranted, PermissionDenied:
		p.permission = Permission(raw.Permission)
	}
	if raw.Subscription != nil {
		reg, err := raw.Subscription.registration()
		if err != nil {
			return fmt.Errorf("parse keystore: %w", err)
		}
		p.reg = reg
	}
	p.dropped = raw.Dropped
	p.loaded = true
	return nil
}

func (p *LocalPlatform) saveLocked() error {
	raw := keystoreFile{Permission: string(p.permission), Dropped: p.dropped}
	if p.reg != nil {
		raw.Subscription = &storedSubscription{
			Token:                p.reg.Token,
			Endpoint:             p.reg.Endpoint,
			PrivateKey:           EncodeKey(p.reg.PrivateKey.Bytes()),
			Auth:                 EncodeKey(p.reg.Auth),
			ApplicationServerKey: EncodeKey(p.reg.ApplicationServerKey),
			CreatedAt:            p.reg.CreatedAt,
		}
	}
	data, err := toml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	p.loaded = true
	return nil
}

func (s storedSubscription) registration() (*Registration, error) {
	privBytes, err := DecodeKey(s.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	priv, err := ecdh.P256().NewPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	auth, err := DecodeKey(s.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	serverKey, err := DecodeKey(s.ApplicationServerKey)
	if err != nil {
		return nil, fmt.Errorf("application server key: %w", err)
	}
	return &Registration{
		Token:                s.Token,
		Endpoint:             s.Endpoint,
		PrivateKey:           priv,
		Auth:                 auth,
		ApplicationServerKey: serverKey,
		CreatedAt:            s.CreatedAt,
	}, nil
}
