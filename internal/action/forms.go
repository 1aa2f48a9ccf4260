package action

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// fillJS sets an element's value and fires the events frameworks listen for.
// Checkbox/radio values go through truthy normalization so "yes" and "on"
// mean checked. A non-empty return is a validation failure.
const fillJS = `function(value) {
	const tag = this.tagName ? this.tagName.toLowerCase() : '';
	const type = (this.getAttribute && this.getAttribute('type') || '').toLowerCase();
	if (type === 'checkbox' || type === 'radio') {
		const truthy = ['true', '1', 'yes', 'on', 'checked'].includes(String(value).trim().toLowerCase());
		this.checked = truthy;
	} else if (tag === 'input' || tag === 'textarea') {
		this.value = value;
	} else if (this.isContentEditable) {
		this.textContent = value;
	} else {
		return 'element is not fillable: <' + tag + '>';
	}
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return '';
}`

// fill writes one or more fields. A bare ref/value pair and a batched fields
// list go through the same per-field path, so the truthy normalization and
// event dispatch apply to every write.
func (e *Executor) fill(ctx context.Context, req Request) (*Result, error) {
	fields := req.Fields
	if len(fields) == 0 {
		fields = []FieldValue{{Ref: req.Ref, Value: req.Value}}
	}
	for _, f := range fields {
		if err := e.fillField(ctx, f); err != nil {
			return nil, err
		}
	}
	e.sess.InvalidateAXCache()
	return &Result{Kind: req.Kind, Ref: req.Ref, Data: map[string]int{"filled": len(fields)}}, nil
}

func (e *Executor) fillField(ctx context.Context, f FieldValue) error {
	objectID, release, err := e.resolve(ctx, f.Ref)
	if err != nil {
		return err
	}
	defer release()

	res, err := e.sess.CallFunctionOn(ctx, objectID, fillJS, []any{f.Value}, true)
	if err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("action: fill %s: %s", f.Ref, res.ExceptionDetails.Text)
	}
	if res.Result != nil {
		if msg := res.Result.Value.Str(); msg != "" {
			return &ValidationError{Field: "ref", Reason: f.Ref + ": " + msg}
		}
	}
	return nil
}

// selectJS marks options whose value or visible text matches, honouring
// single-select semantics, and fires input/change. A non-empty return is a
// validation failure.
const selectJS = `function(values) {
	if (!this.tagName || this.tagName !== 'SELECT') {
		return 'element is not a <select>';
	}
	const wanted = new Set(values.map(String));
	let matched = 0;
	for (const opt of this.options) {
		const hit = wanted.has(opt.value) || wanted.has(opt.textContent.trim());
		if (hit && !this.multiple && matched > 0) continue;
		opt.selected = hit;
		if (hit) matched++;
	}
	if (matched === 0) return 'no options matched';
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return '';
}`

func (e *Executor) selectOptions(ctx context.Context, req Request) (*Result, error) {
	objectID, release, err := e.resolve(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := e.sess.CallFunctionOn(ctx, objectID, selectJS, []any{req.Values}, true)
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("action: select: %s", res.ExceptionDetails.Text)
	}
	if res.Result != nil {
		if msg := res.Result.Value.Str(); msg != "" {
			return nil, &ValidationError{Field: "values", Reason: msg}
		}
	}
	e.sess.InvalidateAXCache()
	return &Result{Kind: req.Kind, Ref: req.Ref, Data: map[string]any{"values": req.Values}}, nil
}

// upload attaches files to a file input through the DOM domain. The element
// handle is first pinned to a node ID, which is what setFileInputFiles wants.
func (e *Executor) upload(ctx context.Context, req Request) (*Result, error) {
	objectID, release, err := e.resolve(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	defer release()

	node, err := proto.DOMRequestNode{ObjectID: objectID}.Call(e.sess.Client(ctx))
	if err != nil {
		return nil, fmt.Errorf("action: request node: %w", err)
	}
	err = proto.DOMSetFileInputFiles{
		Files:  req.Files,
		NodeID: node.NodeID,
	}.Call(e.sess.Client(ctx))
	if err != nil {
		return nil, fmt.Errorf("action: set files: %w", err)
	}
	// File inputs don't fire change from setFileInputFiles on all targets.
	if res, err := e.sess.CallFunctionOn(ctx, objectID,
		`function() { this.dispatchEvent(new Event('input', {bubbles: true})); this.dispatchEvent(new Event('change', {bubbles: true})); }`,
		nil, true); err == nil && res.ExceptionDetails != nil {
		e.logger.Debug("action: upload event dispatch failed", "detail", res.ExceptionDetails.Text)
	}
	e.sess.InvalidateAXCache()
	return &Result{Kind: req.Kind, Ref: req.Ref, Data: map[string]int{"files": len(req.Files)}}, nil
}
