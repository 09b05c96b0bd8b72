package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/fridgewatch/internal/agent"
	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/config"
	"github.com/five82/fridgewatch/internal/logging"
	"github.com/five82/fridgewatch/internal/prefs"
	"github.com/five82/fridgewatch/internal/push"
	"github.com/five82/fridgewatch/internal/state"
	"github.com/five82/fridgewatch/internal/ui"
)

// Options configure the fridgewatch application.
type Options struct {
	ConfigPath  string
	PrefsPath   string // empty uses default ~/.config/fridgewatch/prefs.toml
	PollEvery   int    // seconds; zero uses the config value
	LogToStderr bool   // headless commands log to the terminal instead of the log file
}

// env is everything the commands share once config is loaded.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	client *api.Client
	store  *state.Store
}

func setup(opts Options) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = opts.PollEvery
	}

	logPath := cfg.LogFile
	if opts.LogToStderr {
		logPath = "stderr"
	}
	logger, err := logging.New(logging.Options{Path: logPath, Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	client, err := api.NewClient(cfg.APIURL)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("init api client: %w", err)
	}
	return &env{cfg: cfg, logger: logger, client: client, store: &state.Store{}}, nil
}

func (e *env) controller(platform push.Platform, window time.Duration) *Controller {
	return NewController(ControllerOptions{
		Backend:         e.client,
		Platform:        platform,
		Store:           e.store,
		Logger:          e.logger.Named("controller"),
		PollInterval:    e.cfg.PollEvery(),
		HistoryInterval: e.cfg.HistoryEvery(),
		HistoryWindow:   window,
	})
}

// Run boots the dashboard with its push receiver until the UI exits or the
// context is cancelled.
func Run(ctx context.Context, opts Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		e.logger.Warn("load prefs", zap.Error(err))
	}

	bridge := ui.NewBridge()
	platform, err := push.NewLocalPlatform(e.cfg.KeystorePath(), e.cfg.PushPublicURL, bridge)
	if err != nil {
		return fmt.Errorf("open push keystore: %w", err)
	}

	display := agent.NewChannelDisplayer(16)
	views, err := agent.NewRegistry(e.cfg.WebURL, agent.CommandOpener(e.cfg.OpenCommand))
	if err != nil {
		return err
	}
	removeView := views.Add(bridge)
	defer removeView()
	notifier := agent.New(display, views, e.logger.Named("agent"))
	receiver := agent.NewReceiver(platform, notifier, e.logger.Named("receiver"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrl := e.controller(platform, userPrefs.Window())
	ctrl.Start(ctx)
	defer ctrl.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := receiver.Serve(gctx, e.cfg.PushListen); err != nil {
			// The dashboard stays useful without push delivery.
			e.logger.Error("push receiver stopped", zap.Error(err))
			e.store.SetNotice("Push receiver unavailable: "+err.Error(), true)
		}
		return nil
	})
	g.Go(func() error {
		if err := ctrl.Startup(gctx); err != nil {
			e.logger.Warn("startup subscription check failed", zap.Error(err))
		}
		return nil
	})

	uiErr := ui.Run(ui.Options{
		Context:    ctx,
		Store:      e.store,
		Controller: ctrl,
		Clicker:    notifier,
		Events:     display.Events(),
		Bridge:     bridge,
		LogPath:    e.cfg.LogFile,
		PrefsPath:  opts.PrefsPath,
		Prefs:      userPrefs,
	})
	cancel()
	if err := g.Wait(); err != nil && uiErr == nil {
		uiErr = err
	}
	return uiErr
}

// RunAgent runs only the push receiver, printing notifications to out.
func RunAgent(ctx context.Context, opts Options, out io.Writer) error {
	opts.LogToStderr = true
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	platform, err := push.NewLocalPlatform(e.cfg.KeystorePath(), e.cfg.PushPublicURL, nil)
	if err != nil {
		return fmt.Errorf("open push keystore: %w", err)
	}
	views, err := agent.NewRegistry(e.cfg.WebURL, agent.CommandOpener(e.cfg.OpenCommand))
	if err != nil {
		return err
	}
	notifier := agent.New(agent.NewPrintDisplayer(out, e.logger), views, e.logger.Named("agent"))
	return agent.NewReceiver(platform, notifier, e.logger.Named("receiver")).Serve(ctx, e.cfg.PushListen)
}

// Subscribe enables notifications without the dashboard: one status poll
// for the server key, then the normal subscribe flow with prompter asking
// for permission. It returns the registered endpoint.
func Subscribe(ctx context.Context, opts Options, prompter push.Prompter) (string, error) {
	opts.LogToStderr = true
	e, err := setup(opts)
	if err != nil {
		return "", err
	}
	defer func() { _ = e.logger.Sync() }()

	platform, err := push.NewLocalPlatform(e.cfg.KeystorePath(), e.cfg.PushPublicURL, prompter)
	if err != nil {
		return "", fmt.Errorf("open push keystore: %w", err)
	}
	ctrl := e.controller(platform, 0)
	if err := ctrl.RefreshStatus(ctx); err != nil {
		return "", err
	}
	if err := ctrl.Subscribe(ctx); err != nil {
		return "", err
	}
	return e.store.Snapshot().Endpoint, nil
}
