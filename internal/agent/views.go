package agent

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"slices"
	"strings"
	"sync"
)

// OpenFunc opens an absolute URL outside the process.
type OpenFunc func(ctx context.Context, rawURL string) error

// CommandOpener runs command with the URL as its last argument, e.g.
// "xdg-open" or "open".
func CommandOpener(command string) OpenFunc {
	fields := strings.Fields(command)
	return func(ctx context.Context, rawURL string) error {
		if len(fields) == 0 {
			return fmt.Errorf("no open command configured")
		}
		args := append(slices.Clone(fields[1:]), rawURL)
		cmd := exec.CommandContext(ctx, fields[0], args...)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("run %s: %w", fields[0], err)
		}
		go func() { _ = cmd.Wait() }()
		return nil
	}
}

// Registry tracks the views open in this process and opens new ones with
// an OpenFunc. Relative targets are resolved against base.
type Registry struct {
	mu    sync.Mutex
	views map[int]View
	order []int
	next  int
	base  *url.URL
	open  OpenFunc
}

// NewRegistry returns an empty registry.
func NewRegistry(base string, open OpenFunc) (*Registry, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse web url: %w", err)
	}
	return &Registry{views: make(map[int]View), base: u, open: open}, nil
}

// Add registers v and returns a func that removes it again.
func (r *Registry) Add(v View) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.views[id] = v
	r.order = append(r.order, id)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.views, id)
		r.order = slices.DeleteFunc(r.order, func(x int) bool { return x == id })
	}
}

// List returns the open views in registration order.
func (r *Registry) List(context.Context) ([]View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]View, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.views[id])
	}
	return out, nil
}

// Open resolves target against the base URL and hands it to the opener.
func (r *Registry) Open(ctx context.Context, target string) error {
	ref, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse target: %w", err)
	}
	if r.open == nil {
		return fmt.Errorf("no opener configured")
	}
	return r.open(ctx, r.base.ResolveReference(ref).String())
}

// StaticView is a View at a fixed location whose Focus calls a func.
type StaticView struct {
	Location string
	OnFocus  func(ctx context.Context) error
}

func (v StaticView) URL() string { return v.Location }

func (v StaticView) Focus(ctx context.Context) error {
	if v.OnFocus == nil {
		return nil
	}
	return v.OnFocus(ctx)
}
