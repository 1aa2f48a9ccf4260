// Package browser launches (or connects to) a Chromium instance and exposes
// its CDP control socket plus browser-level target management.
package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config controls how the browser is obtained.
type Config struct {
	// RemoteURL connects to an already-running browser instead of
	// launching one (ws:// or http://host:port devtools URL).
	RemoteURL string `yaml:"remote_url"`
	// Headless launches without a visible window.
	Headless bool `yaml:"headless"`
	// Bin overrides the Chromium binary path.
	Bin string `yaml:"bin"`
	// UserDataDir persists the profile between runs when set.
	UserDataDir string `yaml:"user_data_dir"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser is one connected Chromium.
type Browser struct {
	cfg    Config
	logger *slog.Logger
	client *cdp.Client
	launch *launcher.Launcher // nil when attached to a remote browser
}

// Connect launches a local browser (or dials RemoteURL) and opens the CDP
// control socket.
func Connect(ctx context.Context, cfg Config) (*Browser, error) {
	cfg.defaults()

	url := cfg.RemoteURL
	var l *launcher.Launcher
	if url == "" {
		l = launcher.New().
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.UserDataDir != "" {
			l = l.UserDataDir(cfg.UserDataDir)
		}
		var err error
		url, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		cfg.Logger.Info("browser: launched", "headless", cfg.Headless, "url", url)
	} else {
		cfg.Logger.Info("browser: connecting to remote", "url", url)
	}

	client, err := cdp.StartWithURL(ctx, url, nil)
	if err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("browser: connect %s: %w", url, err)
	}
	return &Browser{cfg: cfg, logger: cfg.Logger, client: client, launch: l}, nil
}

// Client returns the raw CDP connection.
func (b *Browser) Client() *cdp.Client { return b.client }

// Close tears down the browser process when we launched it. Remote browsers
// are left running.
func (b *Browser) Close() {
	if b.launch != nil {
		b.launch.Kill()
		b.launch.Cleanup()
		b.logger.Info("browser: killed")
	}
}

// rootCaller adapts the connection for browser-level typed proto calls.
type rootCaller struct {
	ctx    context.Context
	client *cdp.Client
}

func (c rootCaller) GetContext() context.Context { return c.ctx }

func (c rootCaller) Call(ctx context.Context, sessionID, method string, params any) ([]byte, error) {
	return c.client.Call(ctx, sessionID, method, params)
}

func (b *Browser) root(ctx context.Context) proto.Client {
	return rootCaller{ctx: ctx, client: b.client}
}

// Pages lists open page targets.
func (b *Browser) Pages(ctx context.Context) ([]*proto.TargetTargetInfo, error) {
	res, err := proto.TargetGetTargets{}.Call(b.root(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: list targets: %w", err)
	}
	var pages []*proto.TargetTargetInfo
	for _, t := range res.TargetInfos {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

// FirstPage returns an existing page target, creating one when the browser
// has none (headless starts can come up empty).
func (b *Browser) FirstPage(ctx context.Context) (proto.TargetTargetID, error) {
	pages, err := b.Pages(ctx)
	if err != nil {
		return "", err
	}
	if len(pages) > 0 {
		return pages[0].TargetID, nil
	}
	return b.NewPage(ctx, "about:blank")
}

// NewPage opens a new page target.
func (b *Browser) NewPage(ctx context.Context, url string) (proto.TargetTargetID, error) {
	res, err := proto.TargetCreateTarget{URL: url}.Call(b.root(ctx))
	if err != nil {
		return "", fmt.Errorf("browser: create target: %w", err)
	}
	return res.TargetID, nil
}

// ClosePage closes a page target.
func (b *Browser) ClosePage(ctx context.Context, id proto.TargetTargetID) error {
	if _, err := (proto.TargetCloseTarget{TargetID: id}).Call(b.root(ctx)); err != nil {
		return fmt.Errorf("browser: close target %s: %w", id, err)
	}
	return nil
}
