// CLAUDE:SUMMARY Action executor — validates, times out, and dispatches the 15-verb catalog over raw CDP.
// Package action executes the verb catalog against a live page through raw
// CDP Input/DOM/Runtime/Page commands. Element-directed verbs take snapshot
// ref tokens and resolve them through the ref registry.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dompilot/internal/ref"
	"github.com/hazyhaar/dompilot/internal/session"
)

// ValidationError reports a request that can never succeed as written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("action: invalid %s: %s", e.Field, e.Reason)
}

// TimeoutError reports an action that ran out of budget. Wait conditions
// carry their own description so the caller sees what never happened.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("action: %s timed out after %s", e.Op, e.After)
}

// Request is one action to execute. Kind selects the verb; the other fields
// apply per verb.
type Request struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref,omitempty"`

	Text   string `json:"text,omitempty"`   // type
	Value  string `json:"value,omitempty"`  // fill
	Submit bool   `json:"submit,omitempty"` // type: press Enter after
	Slowly bool   `json:"slowly,omitempty"` // type: per-keystroke events

	Fields []FieldValue `json:"fields,omitempty"` // fill: batched writes

	Double    bool   `json:"double,omitempty"`     // click
	TargetRef string `json:"target_ref,omitempty"` // drag destination

	Values []string `json:"values,omitempty"` // select
	Key    string   `json:"key,omitempty"`    // press

	Expression string         `json:"expression,omitempty"` // evaluate
	Wait       *WaitCondition `json:"wait,omitempty"`       // wait

	URL   string   `json:"url,omitempty"`   // navigate
	Files []string `json:"files,omitempty"` // upload

	Width  int `json:"width,omitempty"`  // resize
	Height int `json:"height,omitempty"` // resize

	PromptText string `json:"prompt_text,omitempty"` // dialog_accept

	// TimeoutMS overrides the executor default for this request.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// FieldValue is one entry of a batched fill.
type FieldValue struct {
	Ref   string `json:"ref"`
	Value string `json:"value"`
}

// Result reports one executed action.
type Result struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Config tunes execution pacing.
type Config struct {
	// DefaultTimeout bounds each action unless the request overrides it.
	DefaultTimeout time.Duration
	// TypeDelay is the pause between typed characters.
	TypeDelay time.Duration
	// WaitPoll is the wait-condition polling interval.
	WaitPoll time.Duration
	// DragSteps is the number of interpolated move events per drag.
	DragSteps int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.TypeDelay <= 0 {
		c.TypeDelay = 25 * time.Millisecond
	}
	if c.WaitPoll <= 0 {
		c.WaitPoll = 100 * time.Millisecond
	}
	if c.DragSteps <= 0 {
		c.DragSteps = 12
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Executor dispatches requests to verb handlers.
type Executor struct {
	cfg      Config
	logger   *slog.Logger
	sess     *session.Session
	resolver *ref.Resolver
}

func NewExecutor(sess *session.Session, resolver *ref.Resolver, cfg Config) *Executor {
	cfg.defaults()
	return &Executor{cfg: cfg, logger: cfg.Logger, sess: sess, resolver: resolver}
}

// refVerbs require a resolvable ref token. fill is absent: it may carry its
// refs in the fields list instead.
var refVerbs = map[string]bool{
	"click": true, "type": true, "hover": true,
	"drag": true, "select": true, "upload": true,
}

// Execute validates and runs one action within its timeout budget.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	timeout := e.cfg.DefaultTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := e.dispatch(ctx, req)
	if err != nil {
		var terr *TimeoutError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.As(err, &terr) {
			err = &TimeoutError{Op: req.Kind, After: timeout}
		}
		e.logger.Warn("action: failed", "kind", req.Kind, "ref", req.Ref, "error", err)
		return nil, err
	}
	e.logger.Info("action: done", "kind", req.Kind, "ref", req.Ref, "elapsed", time.Since(start))
	return res, nil
}

func (e *Executor) dispatch(ctx context.Context, req Request) (*Result, error) {
	switch req.Kind {
	case "click":
		return e.click(ctx, req)
	case "hover":
		return e.hover(ctx, req)
	case "drag":
		return e.drag(ctx, req)
	case "type":
		return e.typeText(ctx, req)
	case "press":
		return e.press(ctx, req)
	case "fill":
		return e.fill(ctx, req)
	case "select":
		return e.selectOptions(ctx, req)
	case "upload":
		return e.upload(ctx, req)
	case "evaluate":
		return e.evaluate(ctx, req)
	case "wait":
		return e.waitFor(ctx, req)
	case "screenshot":
		return e.screenshot(ctx, req)
	case "navigate":
		return e.navigate(ctx, req)
	case "resize":
		return e.resize(ctx, req)
	case "dialog_accept":
		return e.dialog(ctx, req, true)
	case "dialog_dismiss":
		return e.dialog(ctx, req, false)
	default:
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown verb %q", req.Kind)}
	}
}

func validate(req Request) error {
	if req.Kind == "" {
		return &ValidationError{Field: "kind", Reason: "required"}
	}
	if refVerbs[req.Kind] && req.Ref == "" {
		return &ValidationError{Field: "ref", Reason: "required for " + req.Kind}
	}
	switch req.Kind {
	case "fill":
		if len(req.Fields) == 0 && req.Ref == "" {
			return &ValidationError{Field: "ref", Reason: "ref or fields required for fill"}
		}
		for _, f := range req.Fields {
			if f.Ref == "" {
				return &ValidationError{Field: "fields", Reason: "every field needs a ref"}
			}
		}
	case "drag":
		if req.TargetRef == "" {
			return &ValidationError{Field: "target_ref", Reason: "required for drag"}
		}
	case "press":
		if req.Key == "" {
			return &ValidationError{Field: "key", Reason: "required for press"}
		}
	case "select":
		if len(req.Values) == 0 {
			return &ValidationError{Field: "values", Reason: "required for select"}
		}
	case "upload":
		if len(req.Files) == 0 {
			return &ValidationError{Field: "files", Reason: "required for upload"}
		}
	case "evaluate":
		if req.Expression == "" {
			return &ValidationError{Field: "expression", Reason: "required for evaluate"}
		}
	case "wait":
		if req.Wait == nil {
			return &ValidationError{Field: "wait", Reason: "condition required"}
		}
	case "navigate":
		if req.URL == "" {
			return &ValidationError{Field: "url", Reason: "required for navigate"}
		}
	case "resize":
		if req.Width <= 0 || req.Height <= 0 {
			return &ValidationError{Field: "width/height", Reason: "must be positive"}
		}
	}
	return nil
}

// resolve maps a ref token to a live object handle plus its release func.
func (e *Executor) resolve(ctx context.Context, token string) (proto.RuntimeRemoteObjectID, func(), error) {
	id, _, err := e.resolver.Resolve(ctx, token)
	if err != nil {
		return "", nil, err
	}
	return id, func() { e.sess.ReleaseObject(ctx, id) }, nil
}

func (e *Executor) screenshot(ctx context.Context, req Request) (*Result, error) {
	data, err := e.sess.CaptureScreenshot(ctx, session.ScreenshotOptions{FullPage: true})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: req.Kind, Data: map[string]any{"bytes": len(data), "image": data}}, nil
}

func (e *Executor) navigate(ctx context.Context, req Request) (*Result, error) {
	nav, err := e.sess.Navigate(ctx, req.URL, 0)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: req.Kind, Data: nav}, nil
}

func (e *Executor) resize(ctx context.Context, req Request) (*Result, error) {
	err := proto.EmulationSetDeviceMetricsOverride{
		Width:             req.Width,
		Height:            req.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}.Call(e.sess.Client(ctx))
	if err != nil {
		return nil, fmt.Errorf("action: resize: %w", err)
	}
	return &Result{Kind: req.Kind, Data: map[string]int{"width": req.Width, "height": req.Height}}, nil
}

func (e *Executor) dialog(ctx context.Context, req Request, accept bool) (*Result, error) {
	d, err := e.sess.HandleDialog(ctx, accept, req.PromptText)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: req.Kind, Data: d}, nil
}
