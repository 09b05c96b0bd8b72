package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/push"
	"github.com/five82/fridgewatch/internal/state"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultHistoryInterval = 30 * time.Second
	defaultHistoryWindow   = 6 * time.Hour
)

// errStale marks a response that lost to a newer request or arrived after Stop.
var errStale = errors.New("stale response")

// ControllerOptions configure a Controller.
type ControllerOptions struct {
	Backend         api.Backend
	Platform        push.Platform
	Store           *state.Store
	Logger          *zap.Logger
	PollInterval    time.Duration
	HistoryInterval time.Duration
	HistoryWindow   time.Duration
	Now             func() time.Time
}

// Controller owns the dashboard's timers and drives every state change:
// status polling, history fetching, the subscription lifecycle and saves.
type Controller struct {
	backend  api.Backend
	platform push.Platform
	store    *state.Store
	logger   *zap.Logger
	now      func() time.Time

	pollInterval    time.Duration
	historyInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
	window  time.Duration
	pinned  *Range // fixed range chosen by the user; nil means rolling window

	statusSeq     atomic.Uint64
	statusApplied uint64
	historySeq    atomic.Uint64
	subscribing   atomic.Bool
}

// NewController builds a Controller; Backend and Store are required.
func NewController(opts ControllerOptions) *Controller {
	c := &Controller{
		backend:         opts.Backend,
		platform:        opts.Platform,
		store:           opts.Store,
		logger:          opts.Logger,
		now:             opts.Now,
		pollInterval:    opts.PollInterval,
		historyInterval: opts.HistoryInterval,
		window:          opts.HistoryWindow,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.historyInterval <= 0 {
		c.historyInterval = defaultHistoryInterval
	}
	if c.window <= 0 {
		c.window = defaultHistoryWindow
	}
	return c
}

// Start launches the status and history loops. The first status refresh
// fires immediately. Calling Start on a running controller is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopped = false

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.loop(runCtx, c.pollInterval, func(ctx context.Context) {
			_ = c.RefreshStatus(ctx)
		})
	}()
	go func() {
		defer c.wg.Done()
		c.loop(runCtx, c.historyInterval, func(ctx context.Context) {
			_ = c.RefreshHistory(ctx)
		})
	}()
}

// Stop cancels both loops and any in-flight request, then waits for the
// loops to exit. Responses that still arrive afterwards are discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.stopped = true
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Controller) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// RefreshStatus fetches /status once. On failure the previous devices and
// key stay in place and only the failure counters change.
func (c *Controller) RefreshStatus(ctx context.Context) error {
	seq := c.statusSeq.Add(1)
	status, err := c.backend.FetchStatus(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || seq < c.statusApplied {
		return errStale
	}
	c.statusApplied = seq

	if err != nil {
		c.logger.Warn("status poll failed", zap.Error(err))
		c.store.UpdateStatus(nil, err)
		return err
	}
	c.store.UpdateStatus(status, nil)
	return nil
}
