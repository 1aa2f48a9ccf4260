// CLAUDE:SUMMARY CDP page session — flatten attach, command dispatch, event bus, dialogs, console, AX cache.
// Package session owns the CDP connection to one page target: attach/detach
// lifecycle, command dispatch, event fan-out, navigation, screenshots, and a
// TTL-cached accessibility-tree fetch.
//
// All commands go through one Transport (a websocket CDP client in
// production, a fake in tests) and are correlated by the transport itself.
// The session adds target scoping, the Detached ⇄ Attached state machine, and
// typed access via rod's proto bindings.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// ErrNotAttached is returned by every session-scoped command issued while the
// session is detached.
var ErrNotAttached = errors.New("session: not attached to a target")

// ProtocolError wraps an uncategorised CDP failure.
type ProtocolError struct {
	Method string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Transport is the command/event pipe to a Chromium instance.
// *cdp.Client satisfies it.
type Transport interface {
	Call(ctx context.Context, sessionID, method string, params any) ([]byte, error)
	Event() <-chan *cdp.Event
}

var _ Transport = (*cdp.Client)(nil)

// Config tunes session behaviour.
type Config struct {
	// AXCacheTTL bounds how long a fetched accessibility tree is reused.
	AXCacheTTL time.Duration
	// NavigateTimeout is the default navigation budget.
	NavigateTimeout time.Duration
	// ConsoleBuffer caps the retained console entries.
	ConsoleBuffer int
	// DialogHistory caps the closed-dialog history.
	DialogHistory int
	// UserAgent, when set, overrides the browser user agent on attach.
	UserAgent string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.AXCacheTTL <= 0 {
		c.AXCacheTTL = 2 * time.Second
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.ConsoleBuffer <= 0 {
		c.ConsoleBuffer = 500
	}
	if c.DialogHistory <= 0 {
		c.DialogHistory = 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is the single automation surface over one attached page target.
type Session struct {
	cfg    Config
	logger *slog.Logger
	tr     Transport
	bus    *Bus

	mu        sync.RWMutex
	attached  bool
	targetID  proto.TargetTargetID
	sessionID proto.TargetSessionID
	unsubs    []func()

	axMu    sync.Mutex
	axNodes []*proto.AccessibilityAXNode
	axAt    time.Time

	dialogs *DialogTracker
	console *ConsoleBuffer
}

// New creates a Session over a transport and starts the event pump.
// Call Attach before issuing commands.
func New(tr Transport, cfg Config) *Session {
	cfg.defaults()
	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger,
		tr:     tr,
		bus:    NewBus(cfg.Logger),
	}
	s.dialogs = NewDialogTracker(cfg.DialogHistory)
	s.console = NewConsoleBuffer(cfg.ConsoleBuffer)
	go s.bus.Pump(tr.Event())
	return s
}

// Attached reports whether the session currently holds a live target.
func (s *Session) Attached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attached
}

// TargetID returns the attached target, or empty when detached.
func (s *Session) TargetID() proto.TargetTargetID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetID
}

// Dialogs exposes the native-dialog tracker.
func (s *Session) Dialogs() *DialogTracker { return s.dialogs }

// Console exposes the captured console/log buffer.
func (s *Session) Console() *ConsoleBuffer { return s.console }

// OnEvent subscribes fn to a CDP event method. Multiple subscribers per
// method are supported; a panicking subscriber never prevents the others
// from running. The returned func cancels the subscription.
func (s *Session) OnEvent(method string, fn func(params []byte)) func() {
	return s.bus.Subscribe(method, fn)
}

// Attach binds the session to a page target. Attaching to the target it
// already holds is a no-op; attaching to a different one detaches first.
func (s *Session) Attach(ctx context.Context, targetID proto.TargetTargetID) error {
	s.mu.Lock()
	if s.attached && s.targetID == targetID {
		s.mu.Unlock()
		return nil
	}
	if s.attached {
		s.detachLocked(ctx)
	}
	s.mu.Unlock()

	res, err := proto.TargetAttachToTarget{TargetID: targetID, Flatten: true}.Call(s.browser(ctx))
	if err != nil {
		return fmt.Errorf("session: attach %s: %w", targetID, err)
	}

	s.mu.Lock()
	s.attached = true
	s.targetID = targetID
	s.sessionID = res.SessionID
	s.mu.Unlock()

	if err := s.setupTarget(ctx); err != nil {
		s.Detach(ctx)
		return err
	}

	s.logger.Info("session: attached", "target", targetID)
	return nil
}

// Detach releases the current target. Safe to call when already detached.
func (s *Session) Detach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked(ctx)
}

func (s *Session) detachLocked(ctx context.Context) {
	if !s.attached {
		return
	}
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil

	sessionID := s.sessionID
	s.attached = false
	s.targetID = ""
	s.sessionID = ""
	s.axInvalidate()

	// Best-effort: the browser may already have dropped the target.
	_ = proto.TargetDetachFromTarget{SessionID: sessionID}.Call(&caller{ctx: ctx, sess: s})

	s.logger.Info("session: detached")
}

// setupTarget enables the domains the engine depends on and injects the
// stealth script before any page script runs. Optional domains are
// best-effort: many embedders restrict them and the engine still works.
func (s *Session) setupTarget(ctx context.Context) error {
	c := s.c(ctx)

	if err := (proto.PageEnable{}).Call(c); err != nil {
		return fmt.Errorf("session: enable Page: %w", err)
	}
	if err := (proto.RuntimeEnable{}).Call(c); err != nil {
		return fmt.Errorf("session: enable Runtime: %w", err)
	}
	if err := (proto.DOMEnable{}).Call(c); err != nil {
		s.logger.Debug("session: enable DOM failed", "error", err)
	}
	if err := (proto.AccessibilityEnable{}).Call(c); err != nil {
		s.logger.Debug("session: enable Accessibility failed", "error", err)
	}
	if err := (proto.NetworkEnable{}).Call(c); err != nil {
		s.logger.Debug("session: enable Network failed", "error", err)
	}

	// Many sites gate on automation fingerprints; mask them before any
	// document script observes them.
	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: stealth.JS + "\n" + fingerprintMaskJS}).Call(c); err != nil {
		s.logger.Warn("session: stealth injection failed", "error", err)
	}

	if s.cfg.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}).Call(c); err != nil {
			s.logger.Debug("session: user-agent override failed", "error", err)
		}
	}

	s.mu.Lock()
	s.unsubs = append(s.unsubs,
		s.dialogs.wire(s.bus),
		s.console.wire(s.bus),
	)
	s.mu.Unlock()
	return nil
}

// fingerprintMaskJS hides the signals left after the stealth bundle:
// navigator.webdriver plus empty plugin/language lists.
const fingerprintMaskJS = `(() => {
	try {
		Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	} catch (e) {}
	try {
		if (!navigator.plugins || navigator.plugins.length === 0) {
			Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
		}
		if (!navigator.languages || navigator.languages.length === 0) {
			Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
		}
	} catch (e) {}
})();`

// caller binds a context and session ID for rod's typed proto calls. A
// target-scoped caller refuses to send while the session is detached; the
// browser-level caller never consults the attach state (detach itself issues
// a browser-level command while holding the session lock).
type caller struct {
	ctx       context.Context
	sessionID proto.TargetSessionID
	sess      *Session
	scoped    bool
}

func (c *caller) GetContext() context.Context         { return c.ctx }
func (c *caller) GetSessionID() proto.TargetSessionID { return c.sessionID }

func (c *caller) Call(ctx context.Context, sessionID, method string, params any) ([]byte, error) {
	if c.scoped && !c.sess.Attached() {
		return nil, ErrNotAttached
	}
	res, err := c.sess.tr.Call(ctx, sessionID, method, params)
	if err != nil {
		return nil, &ProtocolError{Method: method, Err: err}
	}
	return res, nil
}

// c returns a proto client scoped to the attached target.
func (s *Session) c(ctx context.Context) proto.Client {
	s.mu.RLock()
	id := s.sessionID
	s.mu.RUnlock()
	return &caller{ctx: ctx, sessionID: id, sess: s, scoped: true}
}

// browser returns a proto client at browser level (no target session).
func (s *Session) browser(ctx context.Context) proto.Client {
	return &caller{ctx: ctx, sess: s}
}

// Client exposes a target-scoped proto client for sibling subsystems
// (snapshot, actions). Commands fail with ErrNotAttached while detached.
func (s *Session) Client(ctx context.Context) proto.Client { return s.c(ctx) }

// BrowserClient exposes the browser-level proto client (target discovery).
func (s *Session) BrowserClient(ctx context.Context) proto.Client { return s.browser(ctx) }

// Eval evaluates a JavaScript expression in the page. Promises are awaited.
// Script exceptions are reported in the result, not as a Go error.
func (s *Session) Eval(ctx context.Context, expr string, byValue bool) (*proto.RuntimeEvaluateResult, error) {
	return proto.RuntimeEvaluate{
		Expression:    expr,
		ReturnByValue: byValue,
		AwaitPromise:  true,
	}.Call(s.c(ctx))
}

// CallFunctionOn invokes a function declaration bound (as `this`) to the
// object behind objectID. Arguments travel through the protocol's argument
// list, so callers never interpolate values into script text.
func (s *Session) CallFunctionOn(ctx context.Context, objectID proto.RuntimeRemoteObjectID, decl string, args []any, byValue bool) (*proto.RuntimeCallFunctionOnResult, error) {
	callArgs := make([]*proto.RuntimeCallArgument, 0, len(args))
	for _, a := range args {
		callArgs = append(callArgs, &proto.RuntimeCallArgument{Value: gson.New(a)})
	}
	return proto.RuntimeCallFunctionOn{
		FunctionDeclaration: decl,
		ObjectID:            objectID,
		Arguments:           callArgs,
		ReturnByValue:       byValue,
		AwaitPromise:        true,
	}.Call(s.c(ctx))
}

// ReleaseObject releases a remote object handle. Best-effort.
func (s *Session) ReleaseObject(ctx context.Context, objectID proto.RuntimeRemoteObjectID) {
	_ = proto.RuntimeReleaseObject{ObjectID: objectID}.Call(s.c(ctx))
}

// AccessibilityTree fetches the full AX tree, serving a cached copy while it
// is fresh. Closely spaced snapshot/resolution calls would otherwise trigger
// redundant full-tree fetches.
func (s *Session) AccessibilityTree(ctx context.Context) ([]*proto.AccessibilityAXNode, error) {
	s.axMu.Lock()
	defer s.axMu.Unlock()

	if s.axNodes != nil && time.Since(s.axAt) < s.cfg.AXCacheTTL {
		return s.axNodes, nil
	}

	res, err := proto.AccessibilityGetFullAXTree{}.Call(s.c(ctx))
	if err != nil {
		return nil, fmt.Errorf("session: accessibility tree: %w", err)
	}
	s.axNodes = res.Nodes
	s.axAt = time.Now()
	return s.axNodes, nil
}

// InvalidateAXCache drops the cached accessibility tree.
func (s *Session) InvalidateAXCache() {
	s.axMu.Lock()
	s.axInvalidate()
	s.axMu.Unlock()
}

func (s *Session) axInvalidate() {
	s.axNodes = nil
	s.axAt = time.Time{}
}

// isAbortText reports whether a navigation error text is an expected abort
// (redirect chains surface as net::ERR_ABORTED).
func isAbortText(text string) bool {
	return strings.Contains(text, "ERR_ABORTED")
}
