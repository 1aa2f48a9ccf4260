package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dompilot/internal/ref"
	"github.com/hazyhaar/dompilot/internal/session"
)

// fakeTransport answers calls from per-method FIFO queues, falling back to a
// sticky default response.
type fakeTransport struct {
	mu       sync.Mutex
	queues   map[string][]json.RawMessage
	defaults map[string]json.RawMessage
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

func newTestEngine(t *testing.T, tr *fakeTransport) (*Engine, *ref.Registry) {
	t.Helper()
	tr.respond("Target.attachToTarget", `{"sessionId":"sess-1"}`)
	s := session.New(tr, session.Config{Logger: slog.New(slog.DiscardHandler)})
	if err := s.Attach(context.Background(), "t1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	reg := ref.NewRegistry()
	return NewEngine(s, reg, Config{Logger: slog.New(slog.DiscardHandler)}), reg
}

// richAXTree has enough meaningful lines to avoid the DOM-walk fallback.
const richAXTree = `{"nodes":[
	{"nodeId":"1","ignored":false,"role":{"type":"role","value":"RootWebArea"},"name":{"type":"computedString","value":"Shop"},"childIds":["2","3","4","5"],"backendDOMNodeId":1},
	{"nodeId":"2","ignored":false,"role":{"type":"role","value":"heading"},"name":{"type":"computedString","value":"Checkout"},"childIds":[],"backendDOMNodeId":2},
	{"nodeId":"3","ignored":false,"role":{"type":"role","value":"button"},"name":{"type":"computedString","value":"Buy now"},"childIds":[],"backendDOMNodeId":3},
	{"nodeId":"4","ignored":false,"role":{"type":"role","value":"textbox"},"name":{"type":"computedString","value":"Email"},"value":{"type":"string","value":"a@b.c"},"childIds":[],"backendDOMNodeId":4},
	{"nodeId":"5","ignored":false,"role":{"type":"role","value":"button"},"name":{"type":"computedString","value":"Buy now"},"childIds":[],"backendDOMNodeId":5}
]}`

func TestRoleSnapshotMintsRefs(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Accessibility.getFullAXTree", richAXTree)
	tr.respond("Runtime.evaluate", `{"result":{"type":"string","value":"{\"url\":\"https://shop.example/\",\"title\":\"Shop\"}"}}`)
	eng, reg := newTestEngine(t, tr)

	res, err := eng.Take(context.Background(), Options{})
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if res.Source != "ax" {
		t.Fatalf("source: got %q, want ax", res.Source)
	}
	if res.Refs != 3 {
		t.Fatalf("refs: got %d, want 3", res.Refs)
	}
	if !strings.Contains(res.Body, `button "Buy now" [e1]`) {
		t.Fatalf("body missing first button:\n%s", res.Body)
	}
	if !strings.Contains(res.Body, `[e3]`) {
		t.Fatalf("body missing third ref:\n%s", res.Body)
	}
	if res.URL != "https://shop.example/" || res.Title != "Shop" {
		t.Fatalf("location: got %q %q", res.URL, res.Title)
	}

	// Duplicate role+name pairs get distinct ordinals.
	e1, _ := reg.Lookup("e1")
	e3, _ := reg.Lookup("e3")
	if e1.Ordinal != 0 || e3.Ordinal != 1 {
		t.Fatalf("ordinals: got %d and %d, want 0 and 1", e1.Ordinal, e3.Ordinal)
	}
	if e1.BackendNodeID != 3 {
		t.Fatalf("e1 backend node: got %d, want 3", e1.BackendNodeID)
	}
}

func TestSnapshotBannersActiveDialog(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Target.attachToTarget", `{"sessionId":"sess-1"}`)
	tr.respond("Accessibility.getFullAXTree", richAXTree)
	s := session.New(tr, session.Config{Logger: slog.New(slog.DiscardHandler)})
	if err := s.Attach(context.Background(), "t1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	eng := NewEngine(s, ref.NewRegistry(), Config{Logger: slog.New(slog.DiscardHandler)})

	tr.events <- &cdp.Event{
		Method: "Page.javascriptDialogOpening",
		Params: json.RawMessage(`{"type":"confirm","message":"Leave page?","url":"https://shop.example/"}`),
	}
	deadline := time.Now().Add(time.Second)
	for s.Dialogs().Active() == nil {
		if time.Now().After(deadline) {
			t.Fatal("dialog never tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, err := eng.Take(context.Background(), Options{})
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if res.Dialog == nil || res.Dialog.Message != "Leave page?" {
		t.Fatalf("dialog: got %+v", res.Dialog)
	}
	if !strings.HasPrefix(res.Body, "!! confirm dialog open") {
		t.Fatalf("body should open with the dialog banner:\n%s", res.Body)
	}
	if !strings.Contains(res.Body, "dialog_accept") || !strings.Contains(res.Body, "dialog_dismiss") {
		t.Fatalf("banner should direct to the dialog verbs:\n%s", res.Body)
	}
	if !strings.Contains(res.Body, `button "Buy now" [e1]`) {
		t.Fatalf("outline should follow the banner:\n%s", res.Body)
	}
}

func TestRegistryReplacedWholesalePerSnapshot(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Accessibility.getFullAXTree", richAXTree)
	eng, reg := newTestEngine(t, tr)

	if _, err := eng.Take(context.Background(), Options{}); err != nil {
		t.Fatalf("take: %v", err)
	}
	first := reg.Len()
	if _, err := eng.Take(context.Background(), Options{}); err != nil {
		t.Fatalf("take: %v", err)
	}
	if reg.Len() != first {
		t.Fatalf("registry size changed across identical snapshots: %d vs %d", first, reg.Len())
	}
	if _, ok := reg.Lookup("e1"); !ok {
		t.Fatal("e1 should exist after re-snapshot")
	}
	if _, ok := reg.Lookup("e4"); ok {
		t.Fatal("stale token e4 should not exist")
	}
}

func TestSparseAXTreeFallsBackToDOMWalk(t *testing.T) {
	tr := newFakeTransport()
	// One meaningful line: below the threshold of 3.
	tr.respond("Accessibility.getFullAXTree", `{"nodes":[
		{"nodeId":"1","ignored":false,"role":{"type":"role","value":"RootWebArea"},"name":{"type":"computedString","value":"App"},"childIds":[],"backendDOMNodeId":1}
	]}`)
	// First evaluate serves location, second serves the walk output.
	tr.respondOnce("Runtime.evaluate", `{"result":{"type":"string","value":"{\"url\":\"https://spa.example/\",\"title\":\"App\"}"}}`)
	tr.respondOnce("Runtime.evaluate", `{"result":{"type":"string","value":"[{\"d\":0,\"role\":\"button\",\"name\":\"Menu\",\"m\":1},{\"d\":0,\"role\":\"textbox\",\"name\":\"Search\",\"m\":2}]"}}`)
	eng, reg := newTestEngine(t, tr)

	res, err := eng.Take(context.Background(), Options{})
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if res.Source != "dom" {
		t.Fatalf("source: got %q, want dom", res.Source)
	}
	if res.Refs != 2 {
		t.Fatalf("refs: got %d, want 2", res.Refs)
	}
	e1, ok := reg.Lookup("e1")
	if !ok || e1.Marker != 1 {
		t.Fatalf("e1: got %+v ok=%v, want marker 1", e1, ok)
	}
}

func TestIfChangedShortResponse(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Accessibility.getFullAXTree", richAXTree)
	eng, _ := newTestEngine(t, tr)

	first, err := eng.Take(context.Background(), Options{IfChanged: true})
	if err != nil {
		t.Fatalf("first take: %v", err)
	}
	if first.Unchanged {
		t.Fatal("first snapshot can never be unchanged")
	}

	second, err := eng.Take(context.Background(), Options{IfChanged: true})
	if err != nil {
		t.Fatalf("second take: %v", err)
	}
	if !second.Unchanged {
		t.Fatal("identical page should report unchanged")
	}
	if second.Body != "" {
		t.Fatal("unchanged response should omit the body")
	}
	if second.Refs == 0 {
		t.Fatal("unchanged response should still report live ref count")
	}
}

func TestAriaFormatFlatList(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Accessibility.getFullAXTree", richAXTree)
	eng, reg := newTestEngine(t, tr)

	res, err := eng.Take(context.Background(), Options{Format: FormatAria})
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if !strings.Contains(res.Body, `[ax1]`) {
		t.Fatalf("body missing ax refs:\n%s", res.Body)
	}
	ax1, ok := reg.Lookup("ax1")
	if !ok || ax1.BackendNodeID == 0 {
		t.Fatalf("ax1: got %+v ok=%v", ax1, ok)
	}
}

func TestBuildAXOutlineSkipsWrappers(t *testing.T) {
	nodes := []*proto.AccessibilityAXNode{}
	raw := `[
		{"nodeId":"1","ignored":false,"role":{"type":"role","value":"RootWebArea"},"name":{"type":"computedString","value":"Page"},"childIds":["2"]},
		{"nodeId":"2","ignored":false,"role":{"type":"role","value":"generic"},"childIds":["3","4"]},
		{"nodeId":"3","ignored":true,"childIds":["5"]},
		{"nodeId":"4","ignored":false,"role":{"type":"role","value":"none"},"childIds":["6"]},
		{"nodeId":"5","ignored":false,"role":{"type":"role","value":"button"},"name":{"type":"computedString","value":"Go"},"childIds":[],"backendDOMNodeId":5},
		{"nodeId":"6","ignored":false,"role":{"type":"role","value":"link"},"name":{"type":"computedString","value":"Docs"},"childIds":[],"backendDOMNodeId":6}
	]`
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	outline := buildAXOutline(nodes)
	if len(outline) != 3 {
		t.Fatalf("outline length: got %d, want 3\n%+v", len(outline), outline)
	}
	// Wrapper/ignored/presentation layers all collapse: both leaves sit
	// directly under the root.
	if outline[1].Role != "button" || outline[1].Depth != 1 {
		t.Fatalf("button: got %+v", outline[1])
	}
	if outline[2].Role != "link" || outline[2].Depth != 1 {
		t.Fatalf("link: got %+v", outline[2])
	}
}

func TestRenderRoleFilters(t *testing.T) {
	outline := []outlineNode{
		{Depth: 0, Role: "RootWebArea", Name: "Page"},
		{Depth: 1, Role: "navigation"},
		{Depth: 2, Role: "link", Name: "Home"},
		{Depth: 1, Role: "StaticText", Name: "hello"},
		{Depth: 3, Role: "button", Name: "Hidden deep"},
	}

	body, entries := renderRole(outline, Options{InteractiveOnly: true})
	if len(entries) != 2 {
		t.Fatalf("interactive entries: got %d, want 2", len(entries))
	}
	if strings.Contains(body, "StaticText") {
		t.Fatalf("interactive-only body should drop text:\n%s", body)
	}

	body, _ = renderRole(outline, Options{MaxDepth: 2})
	if strings.Contains(body, "Hidden deep") {
		t.Fatalf("max-depth body should drop deep nodes:\n%s", body)
	}

	body, _ = renderRole(outline, Options{Compact: true})
	if strings.Contains(body, "navigation") {
		t.Fatalf("compact body should drop bare structure:\n%s", body)
	}
}

func TestCleanPageText(t *testing.T) {
	cases := []struct {
		name        string
		in          string
		contains    []string
		notContains []string
	}{
		{
			name:     "short fragments merge",
			in:       "Score\n3\n-\n2\nFull time",
			contains: []string{"3-2"},
		},
		{
			name:        "digit rollers stripped",
			in:          "Price\n1\n2\n3\n4\n5\n6\n7\nEUR",
			contains:    []string{"Price", "EUR"},
			notContains: []string{"1\n2"},
		},
		{
			name:        "repeated labels deduped",
			in:          "Jan\nJan\nJan\nFeb",
			contains:    []string{"Feb"},
			notContains: []string{"Jan\nJan"},
		},
		{
			name:     "whitespace collapsed",
			in:       "a   b\n\n\n\n\nc",
			contains: []string{"a b", "c"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := cleanPageText(c.in)
			for _, want := range c.contains {
				if !strings.Contains(got, want) {
					t.Errorf("output %q should contain %q", got, want)
				}
			}
			for _, bad := range c.notContains {
				if strings.Contains(got, bad) {
					t.Errorf("output %q should not contain %q", got, bad)
				}
			}
		})
	}
}

func TestCapTableRows(t *testing.T) {
	var rows strings.Builder
	rows.WriteString("<table>")
	for i := 0; i < 50; i++ {
		rows.WriteString("<tr><td>r</td></tr>")
	}
	rows.WriteString("</table>")

	capped, err := capTableRows(rows.String(), 30)
	if err != nil {
		t.Fatalf("cap: %v", err)
	}
	if got := strings.Count(capped, "<tr>"); got != 30 {
		t.Fatalf("rows: got %d, want 30", got)
	}
}

func TestTableToMarkdown(t *testing.T) {
	md, err := tableToMarkdown(`<table><tr><th>Name</th><th>Qty</th></tr><tr><td>Bolt</td><td>40</td></tr></table>`)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(md, "Bolt") || !strings.Contains(md, "|") {
		t.Fatalf("markdown table: got %q", md)
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("abcdef", 3); !strings.HasPrefix(got, "abc") || !strings.Contains(got, "truncated") {
		t.Fatalf("truncated: got %q", got)
	}
	if got := truncateText("abc", 10); got != "abc" {
		t.Fatalf("within budget: got %q", got)
	}
}
