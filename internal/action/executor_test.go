package action

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"

	"github.com/hazyhaar/dompilot/internal/ref"
	"github.com/hazyhaar/dompilot/internal/session"
)

type fakeTransport struct {
	mu       sync.Mutex
	queues   map[string][]json.RawMessage
	defaults map[string]json.RawMessage
	calls    []string
	events   chan *cdp.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		queues:   map[string][]json.RawMessage{},
		defaults: map[string]json.RawMessage{},
		events:   make(chan *cdp.Event),
	}
}

func (f *fakeTransport) respond(method, body string) {
	f.mu.Lock()
	f.defaults[method] = json.RawMessage(body)
	f.mu.Unlock()
}

func (f *fakeTransport) respondOnce(method, body string) {
	f.mu.Lock()
	f.queues[method] = append(f.queues[method], json.RawMessage(body))
	f.mu.Unlock()
}

func (f *fakeTransport) Call(ctx context.Context, sessionID, method string, params any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if q := f.queues[method]; len(q) > 0 {
		f.queues[method] = q[1:]
		return q[0], nil
	}
	if res, ok := f.defaults[method]; ok {
		return res, nil
	}
	return []byte(`{}`), nil
}

func (f *fakeTransport) Event() <-chan *cdp.Event { return f.events }

func (f *fakeTransport) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == method {
			n++
		}
	}
	return n
}

func newTestExecutor(t *testing.T, tr *fakeTransport) (*Executor, *ref.Registry) {
	t.Helper()
	tr.respond("Target.attachToTarget", `{"sessionId":"sess-1"}`)
	s := session.New(tr, session.Config{Logger: slog.New(slog.DiscardHandler)})
	if err := s.Attach(context.Background(), "t1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	reg := ref.NewRegistry()
	exec := NewExecutor(s, ref.NewResolver(s, reg), Config{
		TypeDelay: time.Millisecond,
		WaitPoll:  5 * time.Millisecond,
		Logger:    slog.New(slog.DiscardHandler),
	})
	return exec, reg
}

// stubElement registers e1 resolvable through a backend node and stubs the
// geometry a mouse verb needs.
func stubElement(tr *fakeTransport, reg *ref.Registry) {
	reg.Replace([]ref.Entry{{Token: "e1", Role: "button", Name: "Go", BackendNodeID: 7}})
	tr.respond("DOM.resolveNode", `{"object":{"type":"object","objectId":"el-1"}}`)
	tr.respond("DOM.getBoxModel",
		`{"model":{"content":[10,20,110,20,110,60,10,60],"width":100,"height":40}}`)
}

func TestValidation(t *testing.T) {
	exec, _ := newTestExecutor(t, newFakeTransport())
	cases := []Request{
		{},
		{Kind: "levitate"},
		{Kind: "click"},
		{Kind: "fill"},
		{Kind: "fill", Fields: []FieldValue{{Value: "x"}}},
		{Kind: "drag", Ref: "e1"},
		{Kind: "press"},
		{Kind: "select", Ref: "e1"},
		{Kind: "upload", Ref: "e1"},
		{Kind: "evaluate"},
		{Kind: "wait"},
		{Kind: "navigate"},
		{Kind: "resize", Width: -1, Height: 100},
	}
	for _, req := range cases {
		_, err := exec.Execute(context.Background(), req)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%+v: got %v, want ValidationError", req, err)
		}
	}
}

func TestClickSynthesizesMouseEvents(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)

	res, err := exec.Execute(context.Background(), Request{Kind: "click", Ref: "e1"})
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	if res.Ref != "e1" {
		t.Fatalf("result ref: got %q", res.Ref)
	}
	// moved, pressed, released
	if got := tr.callCount("Input.dispatchMouseEvent"); got != 3 {
		t.Fatalf("mouse events: got %d, want 3", got)
	}
}

func TestDoubleClickSendsSecondPair(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)

	if _, err := exec.Execute(context.Background(), Request{Kind: "click", Ref: "e1", Double: true}); err != nil {
		t.Fatalf("double click: %v", err)
	}
	if got := tr.callCount("Input.dispatchMouseEvent"); got != 5 {
		t.Fatalf("mouse events: got %d, want 5", got)
	}
}

func TestHoverOnlyMoves(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)

	if _, err := exec.Execute(context.Background(), Request{Kind: "hover", Ref: "e1"}); err != nil {
		t.Fatalf("hover: %v", err)
	}
	if got := tr.callCount("Input.dispatchMouseEvent"); got != 1 {
		t.Fatalf("mouse events: got %d, want 1", got)
	}
}

func TestDragInterpolatesMoves(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)
	reg.Replace([]ref.Entry{
		{Token: "e1", Role: "listitem", Name: "A", BackendNodeID: 7},
		{Token: "e2", Role: "listitem", Name: "B", BackendNodeID: 8},
	})

	if _, err := exec.Execute(context.Background(), Request{Kind: "drag", Ref: "e1", TargetRef: "e2"}); err != nil {
		t.Fatalf("drag: %v", err)
	}
	// initial move + press + 12 steps + release
	if got := tr.callCount("Input.dispatchMouseEvent"); got != 15 {
		t.Fatalf("mouse events: got %d, want 15", got)
	}
}

func TestTypeFastPathSetsValue(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)

	res, err := exec.Execute(context.Background(), Request{Kind: "type", Ref: "e1", Text: "abc"})
	if err != nil {
		t.Fatalf("type: %v", err)
	}
	if got := tr.callCount("Runtime.callFunctionOn"); got != 1 {
		t.Fatalf("callFunctionOn calls: got %d, want 1", got)
	}
	if got := tr.callCount("Input.dispatchKeyEvent"); got != 0 {
		t.Fatalf("key events: got %d, want 0 on the fast path", got)
	}
	if data := res.Data.(map[string]int); data["typed"] != 3 {
		t.Fatalf("typed count: got %+v", res.Data)
	}
}

func TestTypeSlowlyDispatchesPerKeystroke(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)

	if _, err := exec.Execute(context.Background(), Request{Kind: "type", Ref: "e1", Text: "abc", Slowly: true}); err != nil {
		t.Fatalf("type: %v", err)
	}
	// keydown + keyup per character
	if got := tr.callCount("Input.dispatchKeyEvent"); got != 6 {
		t.Fatalf("key events: got %d, want 6", got)
	}
	if got := tr.callCount("Runtime.callFunctionOn"); got != 0 {
		t.Fatalf("callFunctionOn calls: got %d, want 0 in slow mode", got)
	}
}

func TestTypeSubmitAppendsEnter(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)

	if _, err := exec.Execute(context.Background(), Request{Kind: "type", Ref: "e1", Text: "hi", Submit: true}); err != nil {
		t.Fatalf("type: %v", err)
	}
	// fast path sets the value, then Enter down/up
	if got := tr.callCount("Input.dispatchKeyEvent"); got != 2 {
		t.Fatalf("key events: got %d, want 2", got)
	}
}

func TestPressUnknownKey(t *testing.T) {
	exec, _ := newTestExecutor(t, newFakeTransport())
	_, err := exec.Execute(context.Background(), Request{Kind: "press", Key: "Hyperspace"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error: got %v, want ValidationError", err)
	}
}

func TestParseKey(t *testing.T) {
	mods, def, err := parseKey("ctrl+shift+a")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if mods != modCtrl|modShift {
		t.Fatalf("mods: got %d", mods)
	}
	if def.Key != "a" {
		t.Fatalf("key: got %q", def.Key)
	}

	_, def, err = parseKey("Enter")
	if err != nil || def.VK != 13 {
		t.Fatalf("enter: def=%+v err=%v", def, err)
	}
	if _, def, _ := parseKey("F5"); def.VK != 116 {
		t.Fatalf("f5: got VK %d, want 116", def.VK)
	}
}

func TestFillRejectsUnfillableElement(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)
	tr.respond("Runtime.callFunctionOn",
		`{"result":{"type":"string","value":"element is not fillable: <div>"}}`)

	_, err := exec.Execute(context.Background(), Request{Kind: "fill", Ref: "e1", Value: "x"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error: got %v, want ValidationError", err)
	}
	if !strings.Contains(err.Error(), "not fillable") {
		t.Fatalf("message: %q", err.Error())
	}
}

func TestFillSucceeds(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)
	tr.respond("Runtime.callFunctionOn", `{"result":{"type":"string","value":""}}`)

	if _, err := exec.Execute(context.Background(), Request{Kind: "fill", Ref: "e1", Value: "yes"}); err != nil {
		t.Fatalf("fill: %v", err)
	}
}

func TestFillBatchedFields(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	reg.Replace([]ref.Entry{
		{Token: "e1", Role: "textbox", Name: "Name", BackendNodeID: 7},
		{Token: "e2", Role: "checkbox", Name: "Subscribe", BackendNodeID: 8},
	})
	tr.respond("DOM.resolveNode", `{"object":{"type":"object","objectId":"el-1"}}`)
	tr.respond("Runtime.callFunctionOn", `{"result":{"type":"string","value":""}}`)

	res, err := exec.Execute(context.Background(), Request{Kind: "fill", Fields: []FieldValue{
		{Ref: "e1", Value: "Ada"},
		{Ref: "e2", Value: "yes"},
	}})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if got := tr.callCount("Runtime.callFunctionOn"); got != 2 {
		t.Fatalf("fill scripts: got %d, want 2", got)
	}
	if data := res.Data.(map[string]int); data["filled"] != 2 {
		t.Fatalf("filled count: got %+v", res.Data)
	}
}

func TestSelectNoMatch(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)
	tr.respond("Runtime.callFunctionOn",
		`{"result":{"type":"string","value":"no options matched"}}`)

	_, err := exec.Execute(context.Background(), Request{Kind: "select", Ref: "e1", Values: []string{"nope"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error: got %v, want ValidationError", err)
	}
}

func TestUploadPinsNodeAndSetsFiles(t *testing.T) {
	tr := newFakeTransport()
	exec, reg := newTestExecutor(t, tr)
	stubElement(tr, reg)
	tr.respond("DOM.requestNode", `{"nodeId":44}`)

	if _, err := exec.Execute(context.Background(), Request{Kind: "upload", Ref: "e1", Files: []string{"/tmp/a.csv"}}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := tr.callCount("DOM.setFileInputFiles"); got != 1 {
		t.Fatalf("setFileInputFiles calls: got %d, want 1", got)
	}
}

func TestEvaluateReturnsExceptionAsData(t *testing.T) {
	tr := newFakeTransport()
	exec, _ := newTestExecutor(t, tr)
	tr.respond("Runtime.evaluate",
		`{"result":{"type":"undefined"},"exceptionDetails":{"exceptionId":1,"text":"Uncaught","lineNumber":1,"columnNumber":1,"exception":{"type":"object","description":"TypeError: boom"}}}`)

	res, err := exec.Execute(context.Background(), Request{Kind: "evaluate", Expression: "boom()"})
	if err != nil {
		t.Fatalf("evaluate should not fail on script exceptions: %v", err)
	}
	data := res.Data.(map[string]any)
	if !strings.Contains(data["error"].(string), "TypeError") {
		t.Fatalf("data: got %+v", data)
	}
}

func TestEvaluateStatementFallback(t *testing.T) {
	tr := newFakeTransport()
	exec, _ := newTestExecutor(t, tr)
	tr.respondOnce("Runtime.evaluate",
		`{"result":{"type":"undefined"},"exceptionDetails":{"exceptionId":1,"text":"Uncaught","lineNumber":1,"columnNumber":1,"exception":{"type":"object","description":"SyntaxError: Unexpected token"}}}`)
	tr.respondOnce("Runtime.evaluate", `{"result":{"type":"number","value":42}}`)

	res, err := exec.Execute(context.Background(), Request{Kind: "evaluate", Expression: "const a = 42; return a"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	data := res.Data.(map[string]any)
	if data["value"].(float64) != 42 {
		t.Fatalf("value: got %+v", data)
	}
}

func TestWaitDelay(t *testing.T) {
	exec, _ := newTestExecutor(t, newFakeTransport())
	start := time.Now()
	if _, err := exec.Execute(context.Background(), Request{Kind: "wait", Wait: &WaitCondition{DelayMS: 30}}); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("wait returned too early")
	}
}

func TestWaitConditionTimesOut(t *testing.T) {
	tr := newFakeTransport()
	exec, _ := newTestExecutor(t, tr)
	tr.respond("Runtime.evaluate", `{"result":{"type":"boolean","value":false}}`)

	_, err := exec.Execute(context.Background(), Request{
		Kind:      "wait",
		Wait:      &WaitCondition{TextPresent: "Done"},
		TimeoutMS: 40,
	})
	var terr *TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("error: got %v, want TimeoutError", err)
	}
	if !strings.Contains(err.Error(), `"Done"`) {
		t.Fatalf("timeout should name the condition: %q", err.Error())
	}
}

func TestWaitConditionResolves(t *testing.T) {
	tr := newFakeTransport()
	exec, _ := newTestExecutor(t, tr)
	tr.respondOnce("Runtime.evaluate", `{"result":{"type":"boolean","value":false}}`)
	tr.respond("Runtime.evaluate", `{"result":{"type":"boolean","value":true}}`)

	if _, err := exec.Execute(context.Background(), Request{Kind: "wait", Wait: &WaitCondition{Selector: "#done"}}); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestReadyStateProbeIsOrdered(t *testing.T) {
	cond := &WaitCondition{ReadyState: "interactive"}
	expr, err := cond.probe()
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	// A page already at "complete" must satisfy "interactive", so the probe
	// compares readiness order instead of strict equality.
	if !strings.Contains(expr, "order.indexOf(document.readyState) >=") {
		t.Fatalf("probe should compare readiness order: %s", expr)
	}

	bad := &WaitCondition{ReadyState: "ludicrous"}
	if _, err := bad.probe(); err == nil {
		t.Fatal("unknown ready state should be rejected")
	}
}

func TestResize(t *testing.T) {
	tr := newFakeTransport()
	exec, _ := newTestExecutor(t, tr)
	if _, err := exec.Execute(context.Background(), Request{Kind: "resize", Width: 1280, Height: 800}); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if got := tr.callCount("Emulation.setDeviceMetricsOverride"); got != 1 {
		t.Fatalf("emulation calls: got %d", got)
	}
}

func TestDialogAcceptWithoutDialog(t *testing.T) {
	exec, _ := newTestExecutor(t, newFakeTransport())
	if _, err := exec.Execute(context.Background(), Request{Kind: "dialog_accept"}); err == nil {
		t.Fatal("expected error with no active dialog")
	}
}

func TestJSQuote(t *testing.T) {
	if got := jsQuote(`a"b` + "\n"); got != `"a\"b\n"` {
		t.Fatalf("quoted: got %s", got)
	}
}
