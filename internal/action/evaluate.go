package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// evaluate runs caller-supplied JavaScript. The source is tried as an
// expression first; statement blocks that fail to parse are retried inside a
// function body. Script exceptions come back as data, not as a Go error: the
// caller asked a question and the throw is the answer.
func (e *Executor) evaluate(ctx context.Context, req Request) (*Result, error) {
	var obj *proto.RuntimeRemoteObject
	var exc *proto.RuntimeExceptionDetails
	var err error

	if req.Ref != "" {
		obj, exc, err = e.evaluateOn(ctx, req)
	} else {
		obj, exc, err = e.evaluatePage(ctx, req.Expression)
	}
	if err != nil {
		return nil, err
	}

	data := map[string]any{}
	if exc != nil {
		data["error"] = exceptionText(exc)
	} else if obj != nil {
		data["value"] = obj.Value.Val()
		if obj.Value.Val() == nil && obj.Description != "" {
			data["value"] = obj.Description
		}
	}
	return &Result{Kind: req.Kind, Ref: req.Ref, Data: data}, nil
}

func (e *Executor) evaluatePage(ctx context.Context, expr string) (*proto.RuntimeRemoteObject, *proto.RuntimeExceptionDetails, error) {
	res, err := e.sess.Eval(ctx, "("+expr+")", true)
	if err != nil {
		return nil, nil, err
	}
	if isSyntaxError(res.ExceptionDetails) {
		res, err = e.sess.Eval(ctx, "(() => {"+expr+"})()", true)
		if err != nil {
			return nil, nil, err
		}
	}
	return res.Result, res.ExceptionDetails, nil
}

// evaluateOn binds the script to the resolved element as `this`.
func (e *Executor) evaluateOn(ctx context.Context, req Request) (*proto.RuntimeRemoteObject, *proto.RuntimeExceptionDetails, error) {
	objectID, release, err := e.resolve(ctx, req.Ref)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	decl := fmt.Sprintf("function() { return (%s); }", req.Expression)
	res, err := e.sess.CallFunctionOn(ctx, objectID, decl, nil, true)
	if err != nil {
		return nil, nil, err
	}
	if isSyntaxError(res.ExceptionDetails) {
		decl = fmt.Sprintf("function() { %s }", req.Expression)
		res, err = e.sess.CallFunctionOn(ctx, objectID, decl, nil, true)
		if err != nil {
			return nil, nil, err
		}
	}
	return res.Result, res.ExceptionDetails, nil
}

func isSyntaxError(d *proto.RuntimeExceptionDetails) bool {
	return d != nil && strings.Contains(exceptionText(d), "SyntaxError")
}

func exceptionText(d *proto.RuntimeExceptionDetails) string {
	if d == nil {
		return ""
	}
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}
