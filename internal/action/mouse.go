package action

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// center computes the viewport center of an element's content box after
// scrolling it into view.
func (e *Executor) center(ctx context.Context, objectID proto.RuntimeRemoteObjectID) (x, y float64, err error) {
	if err := (proto.DOMScrollIntoViewIfNeeded{ObjectID: objectID}).Call(e.sess.Client(ctx)); err != nil {
		// Older targets lack the command; the box may still be visible.
		e.logger.Debug("action: scroll into view failed", "error", err)
	}
	box, err := proto.DOMGetBoxModel{ObjectID: objectID}.Call(e.sess.Client(ctx))
	if err != nil {
		return 0, 0, fmt.Errorf("action: box model: %w", err)
	}
	if box.Model == nil || len(box.Model.Content) < 8 {
		return 0, 0, fmt.Errorf("action: element has no content box")
	}
	q := box.Model.Content
	x = (q[0] + q[2] + q[4] + q[6]) / 4
	y = (q[1] + q[3] + q[5] + q[7]) / 4
	return x, y, nil
}

func (e *Executor) mouseMove(ctx context.Context, x, y float64) error {
	return proto.InputDispatchMouseEvent{
		Type:   proto.InputDispatchMouseEventTypeMouseMoved,
		X:      x,
		Y:      y,
		Button: proto.InputMouseButtonNone,
	}.Call(e.sess.Client(ctx))
}

func (e *Executor) mousePress(ctx context.Context, x, y float64, clickCount int) error {
	return proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMousePressed,
		X:          x,
		Y:          y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: clickCount,
	}.Call(e.sess.Client(ctx))
}

func (e *Executor) mouseRelease(ctx context.Context, x, y float64, clickCount int) error {
	return proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMouseReleased,
		X:          x,
		Y:          y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: clickCount,
	}.Call(e.sess.Client(ctx))
}

// click moves to the element center and synthesizes press/release. Double
// clicks send a second pair with clickCount=2, matching real input timing
// semantics.
func (e *Executor) click(ctx context.Context, req Request) (*Result, error) {
	objectID, release, err := e.resolve(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	defer release()

	x, y, err := e.center(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if err := e.mouseMove(ctx, x, y); err != nil {
		return nil, err
	}
	if err := e.mousePress(ctx, x, y, 1); err != nil {
		return nil, err
	}
	if err := e.mouseRelease(ctx, x, y, 1); err != nil {
		return nil, err
	}
	if req.Double {
		if err := e.mousePress(ctx, x, y, 2); err != nil {
			return nil, err
		}
		if err := e.mouseRelease(ctx, x, y, 2); err != nil {
			return nil, err
		}
	}
	e.sess.InvalidateAXCache()
	return &Result{Kind: req.Kind, Ref: req.Ref}, nil
}

// hover moves the pointer to the element without pressing.
func (e *Executor) hover(ctx context.Context, req Request) (*Result, error) {
	objectID, release, err := e.resolve(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	defer release()

	x, y, err := e.center(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if err := e.mouseMove(ctx, x, y); err != nil {
		return nil, err
	}
	return &Result{Kind: req.Kind, Ref: req.Ref}, nil
}

// drag presses on the source, moves in interpolated steps to the target, and
// releases. The intermediate moves are what HTML5 drag handlers key off.
func (e *Executor) drag(ctx context.Context, req Request) (*Result, error) {
	srcID, releaseSrc, err := e.resolve(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	defer releaseSrc()
	dstID, releaseDst, err := e.resolve(ctx, req.TargetRef)
	if err != nil {
		return nil, err
	}
	defer releaseDst()

	sx, sy, err := e.center(ctx, srcID)
	if err != nil {
		return nil, err
	}
	dx, dy, err := e.center(ctx, dstID)
	if err != nil {
		return nil, err
	}

	if err := e.mouseMove(ctx, sx, sy); err != nil {
		return nil, err
	}
	if err := e.mousePress(ctx, sx, sy, 1); err != nil {
		return nil, err
	}
	steps := e.cfg.DragSteps
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		if err := e.mouseMove(ctx, sx+(dx-sx)*t, sy+(dy-sy)*t); err != nil {
			return nil, err
		}
	}
	if err := e.mouseRelease(ctx, dx, dy, 1); err != nil {
		return nil, err
	}
	e.sess.InvalidateAXCache()
	return &Result{Kind: req.Kind, Ref: req.Ref, Data: map[string]string{"target": req.TargetRef}}, nil
}
