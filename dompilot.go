// CLAUDE:SUMMARY Pilot facade — owns browser, session, snapshot engine, action executor, and the operation trail.
// Package dompilot drives a Chromium page over the DevTools protocol for
// agent automation: role-based page snapshots with short-lived ref tokens,
// and an action catalog that resolves those tokens back to live elements.
//
// The Pilot facade owns one browser connection and one attached page target.
// EnsureAvailable is idempotent and lazy: nothing launches until the first
// operation needs a page.
package dompilot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dompilot/internal/action"
	"github.com/hazyhaar/dompilot/internal/browser"
	"github.com/hazyhaar/dompilot/internal/ref"
	"github.com/hazyhaar/dompilot/internal/session"
	"github.com/hazyhaar/dompilot/internal/snapshot"
	"github.com/hazyhaar/dompilot/internal/trail"
)

// Pilot is the automation facade over one browser and one page session.
type Pilot struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	browser  *browser.Browser
	sess     *session.Session
	registry *ref.Registry
	engine   *snapshot.Engine
	exec     *action.Executor
	trail    *trail.Store
}

// New creates a Pilot. The browser is not launched until EnsureAvailable.
func New(cfg Config, logger *slog.Logger) *Pilot {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pilot{cfg: cfg, logger: logger}
}

// NewFromSession wires a Pilot over an existing session (embedders with
// their own transport, and tests). EnsureAvailable becomes a no-op.
func NewFromSession(cfg Config, sess *session.Session, logger *slog.Logger) *Pilot {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pilot{cfg: cfg, logger: logger, sess: sess}
	p.wire()
	return p
}

func (p *Pilot) wire() {
	p.registry = ref.NewRegistry()
	p.engine = snapshot.NewEngine(p.sess, p.registry, snapshot.Config{
		MinAXLines: p.cfg.MinAXLines,
		DOMWalkCap: p.cfg.DOMWalkCap,
		Logger:     p.logger,
	})
	p.exec = action.NewExecutor(p.sess, ref.NewResolver(p.sess, p.registry), action.Config{
		DefaultTimeout: p.cfg.actionTimeout(),
		Logger:         p.logger,
	})
}

// EnsureAvailable launches (or connects to) the browser, attaches the first
// page target, and opens the trail store. Safe to call repeatedly.
func (p *Pilot) EnsureAvailable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess == nil {
		b, err := browser.Connect(ctx, p.cfg.Browser)
		if err != nil {
			return err
		}
		p.browser = b
		p.sess = session.New(b.Client(), session.Config{
			AXCacheTTL:      time.Duration(p.cfg.AXCacheTTLMS) * time.Millisecond,
			NavigateTimeout: p.cfg.navigateTimeout(),
			ConsoleBuffer:   p.cfg.ConsoleBuffer,
			DialogHistory:   p.cfg.DialogHistory,
			UserAgent:       p.cfg.UserAgent,
			Logger:          p.logger,
		})
		p.wire()
	}

	if !p.sess.Attached() && p.browser != nil {
		target, err := p.browser.FirstPage(ctx)
		if err != nil {
			return err
		}
		if err := p.sess.Attach(ctx, target); err != nil {
			return err
		}
	}

	if p.trail == nil && p.cfg.TrailPath != "" {
		store, err := trail.Open(p.cfg.TrailPath, p.logger)
		if err != nil {
			// The trail is observability, not a dependency.
			p.logger.Warn("dompilot: trail disabled", "path", p.cfg.TrailPath, "error", err)
		} else {
			p.trail = store
		}
	}
	return nil
}

// Close detaches and tears down the browser if this Pilot launched it.
func (p *Pilot) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != nil {
		p.sess.Detach(ctx)
	}
	if p.browser != nil {
		p.browser.Close()
		p.browser = nil
	}
	if err := p.trail.Close(); err != nil {
		p.logger.Warn("dompilot: trail close", "error", err)
	}
	p.trail = nil
}

// Status reports availability and the current page location.
func (p *Pilot) Status(ctx context.Context) *Status {
	p.mu.Lock()
	sess := p.sess
	p.mu.Unlock()

	st := &Status{}
	if sess == nil {
		return st
	}
	st.Available = true
	st.Attached = sess.Attached()
	if !st.Attached {
		return st
	}
	st.Dialog = sess.Dialogs().Active()
	if url, err := sess.CurrentURL(ctx); err == nil {
		st.URL = url
	}
	if res, err := sess.Eval(ctx, "document.title", true); err == nil && res.Result != nil {
		st.Title = res.Result.Value.Str()
	}
	return st
}

// Navigate drives the page to url with the optimistic navigation budget.
func (p *Pilot) Navigate(ctx context.Context, url string) (*NavigationResult, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := p.sess.Navigate(ctx, url, 0)
	p.trail.Record(ctx, "navigate", "", url, time.Since(start), err)
	return res, err
}

// Back moves one entry back in session history.
func (p *Pilot) Back(ctx context.Context) (*NavigationResult, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := p.sess.NavigateHistory(ctx, -1)
	p.trail.Record(ctx, "back", "", "", time.Since(start), err)
	return res, err
}

// Forward moves one entry forward in session history.
func (p *Pilot) Forward(ctx context.Context) (*NavigationResult, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := p.sess.NavigateHistory(ctx, 1)
	p.trail.Record(ctx, "forward", "", "", time.Since(start), err)
	return res, err
}

// Reload reloads the current page.
func (p *Pilot) Reload(ctx context.Context, ignoreCache bool) error {
	if err := p.EnsureAvailable(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := p.sess.Reload(ctx, ignoreCache)
	p.trail.Record(ctx, "reload", "", "", time.Since(start), err)
	return err
}

// Snapshot renders the page and replaces the ref registry. Runs under the
// long-action budget.
func (p *Pilot) Snapshot(ctx context.Context, opts SnapshotOptions) (*SnapshotResult, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.longActionTimeout())
	defer cancel()

	start := time.Now()
	res, err := p.engine.Take(ctx, opts)
	detail := opts.Format
	if detail == "" {
		detail = FormatRole
	}
	p.trail.Record(ctx, "snapshot", detail, "", time.Since(start), err)
	return res, err
}

// Act executes one action request. Runs under the long-action budget unless
// the request carries its own.
func (p *Pilot) Act(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	if req.TimeoutMS <= 0 {
		req.TimeoutMS = p.cfg.LongActionTimeoutMS
	}
	start := time.Now()
	res, err := p.exec.Execute(ctx, req)
	p.trail.Record(ctx, "act", fmt.Sprintf("%s %s", req.Kind, req.Ref), req.URL, time.Since(start), err)
	return res, err
}

// Screenshot captures the page under the long-action budget.
func (p *Pilot) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.longActionTimeout())
	defer cancel()

	start := time.Now()
	data, err := p.sess.CaptureScreenshot(ctx, opts)
	p.trail.Record(ctx, "screenshot", opts.Format, "", time.Since(start), err)
	return data, err
}

// ConsoleLogs returns up to n captured console entries, most recent last.
func (p *Pilot) ConsoleLogs(n int) []ConsoleEntry {
	p.mu.Lock()
	sess := p.sess
	p.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Console().Recent(n)
}

// Cookies lists cookies, optionally filtered by URLs.
func (p *Pilot) Cookies(ctx context.Context, urls []string) ([]*proto.NetworkCookie, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	return p.sess.Cookies(ctx, urls)
}

// SetCookies writes cookies.
func (p *Pilot) SetCookies(ctx context.Context, cookies []*proto.NetworkCookieParam) error {
	if err := p.EnsureAvailable(ctx); err != nil {
		return err
	}
	return p.sess.SetCookies(ctx, cookies)
}

// DeleteCookies removes cookies matching name and optional scope.
func (p *Pilot) DeleteCookies(ctx context.Context, name, url, domain, path string) error {
	if err := p.EnsureAvailable(ctx); err != nil {
		return err
	}
	return p.sess.DeleteCookies(ctx, name, url, domain, path)
}

// ClearCookies wipes all cookies.
func (p *Pilot) ClearCookies(ctx context.Context) error {
	if err := p.EnsureAvailable(ctx); err != nil {
		return err
	}
	return p.sess.ClearCookies(ctx)
}

// Storage reads a whole storage area with its count.
func (p *Pilot) Storage(ctx context.Context, typ StorageType) (*StorageEntries, error) {
	if err := p.EnsureAvailable(ctx); err != nil {
		return nil, err
	}
	entries, err := p.sess.StorageEntries(ctx, typ)
	if err != nil {
		return nil, err
	}
	return &StorageEntries{Type: typ, Entries: entries, Count: len(entries)}, nil
}

// StorageSet writes one key.
func (p *Pilot) StorageSet(ctx context.Context, typ StorageType, key, value string) error {
	if err := p.EnsureAvailable(ctx); err != nil {
		return err
	}
	return p.sess.StorageSet(ctx, typ, key, value)
}

// StorageDelete removes one key.
func (p *Pilot) StorageDelete(ctx context.Context, typ StorageType, key string) error {
	if err := p.EnsureAvailable(ctx); err != nil {
		return err
	}
	return p.sess.StorageDelete(ctx, typ, key)
}

// StorageClear wipes one storage area.
func (p *Pilot) StorageClear(ctx context.Context, typ StorageType) error {
	if err := p.EnsureAvailable(ctx); err != nil {
		return err
	}
	return p.sess.StorageClear(ctx, typ)
}

// Trail returns recent operation-trail records, newest first. Empty when the
// trail is not configured.
func (p *Pilot) Trail(ctx context.Context, limit int) ([]TrailRecord, error) {
	p.mu.Lock()
	store := p.trail
	p.mu.Unlock()
	return store.Recent(ctx, limit)
}
