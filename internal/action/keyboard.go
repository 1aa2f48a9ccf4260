package action

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// typeText writes text into the element. The default path sets the value
// directly and fires input/change, like a paste. Slowly instead synthesizes
// keydown/keyup per character with a small delay, so per-keystroke handlers
// (autocomplete, validation) fire the way they do for a human. Submit
// appends an Enter press either way.
func (e *Executor) typeText(ctx context.Context, req Request) (*Result, error) {
	objectID, release, err := e.resolve(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := (proto.DOMFocus{ObjectID: objectID}).Call(e.sess.Client(ctx)); err != nil {
		return nil, fmt.Errorf("action: focus: %w", err)
	}

	if req.Slowly {
		err = e.typeKeystrokes(ctx, req.Text)
	} else {
		err = e.setValue(ctx, objectID, req.Text)
	}
	if err != nil {
		return nil, err
	}

	if req.Submit {
		if err := e.dispatchKey(ctx, 0, keyDefs["enter"]); err != nil {
			return nil, err
		}
	}
	e.sess.InvalidateAXCache()
	return &Result{Kind: req.Kind, Ref: req.Ref, Data: map[string]int{"typed": len([]rune(req.Text))}}, nil
}

// typeKeystrokes sends keydown (carrying the character, which also inserts
// it) and keyup per rune, paced by TypeDelay.
func (e *Executor) typeKeystrokes(ctx context.Context, text string) error {
	for _, r := range text {
		ch := string(r)
		down := proto.InputDispatchKeyEvent{
			Type: proto.InputDispatchKeyEventTypeKeyDown,
			Key:  ch,
			Text: ch,
		}
		if err := down.Call(e.sess.Client(ctx)); err != nil {
			return err
		}
		up := proto.InputDispatchKeyEvent{
			Type: proto.InputDispatchKeyEventTypeKeyUp,
			Key:  ch,
		}
		if err := up.Call(e.sess.Client(ctx)); err != nil {
			return err
		}
		select {
		case <-time.After(e.cfg.TypeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// setValue delegates to the shared fill script: direct value set plus the
// input/change events frameworks listen for.
func (e *Executor) setValue(ctx context.Context, objectID proto.RuntimeRemoteObjectID, value string) error {
	res, err := e.sess.CallFunctionOn(ctx, objectID, fillJS, []any{value}, true)
	if err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("action: type: %s", res.ExceptionDetails.Text)
	}
	if res.Result != nil {
		if msg := res.Result.Value.Str(); msg != "" {
			return &ValidationError{Field: "ref", Reason: msg}
		}
	}
	return nil
}

// press dispatches one logical key (optionally with modifiers) to the
// focused element. Without a ref it focuses the document body first so the
// key lands on the page, not a dead focus.
func (e *Executor) press(ctx context.Context, req Request) (*Result, error) {
	mods, def, err := parseKey(req.Key)
	if err != nil {
		return nil, err
	}

	if req.Ref != "" {
		objectID, release, rerr := e.resolve(ctx, req.Ref)
		if rerr != nil {
			return nil, rerr
		}
		defer release()
		if err := (proto.DOMFocus{ObjectID: objectID}).Call(e.sess.Client(ctx)); err != nil {
			return nil, fmt.Errorf("action: focus: %w", err)
		}
	} else {
		if _, err := e.sess.Eval(ctx, `document.body && document.body.focus()`, true); err != nil {
			return nil, err
		}
	}

	if err := e.dispatchKey(ctx, mods, def); err != nil {
		return nil, err
	}
	e.sess.InvalidateAXCache()
	return &Result{Kind: req.Kind, Ref: req.Ref, Data: map[string]string{"key": req.Key}}, nil
}

func (e *Executor) dispatchKey(ctx context.Context, modifiers int, def keyDef) error {
	down := proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventTypeKeyDown,
		Modifiers:             modifiers,
		Key:                   def.Key,
		Code:                  def.Code,
		Text:                  def.Text,
		WindowsVirtualKeyCode: def.VK,
		NativeVirtualKeyCode:  def.VK,
	}
	if down.Text == "" {
		down.Type = proto.InputDispatchKeyEventTypeRawKeyDown
	}
	if err := down.Call(e.sess.Client(ctx)); err != nil {
		return err
	}
	return proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventTypeKeyUp,
		Modifiers:             modifiers,
		Key:                   def.Key,
		Code:                  def.Code,
		WindowsVirtualKeyCode: def.VK,
		NativeVirtualKeyCode:  def.VK,
	}.Call(e.sess.Client(ctx))
}
