package ref

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/go-rod/rod/lib/cdp"

	"github.com/hazyhaar/dompilot/internal/session"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"e12", "e12", false},
		{"@e12", "e12", false},
		{"ref=e12", "e12", false},
		{" ax3 ", "ax3", false},
		{"e", "", true},
		{"x9", "", true},
		{"e12x", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Normalize(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Normalize(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRegistryReplaceIsWholesale(t *testing.T) {
	r := NewRegistry()
	r.Replace([]Entry{{Token: "e1", Role: "button", Name: "Save"}})
	r.Replace([]Entry{{Token: "e2", Role: "link", Name: "Home"}})

	if _, ok := r.Lookup("e1"); ok {
		t.Fatal("e1 should have been dropped by the second snapshot")
	}
	e, ok := r.Lookup("e2")
	if !ok || e.Role != "link" {
		t.Fatalf("e2: got %+v ok=%v", e, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("len: got %d, want 1", r.Len())
	}
}

// fakeTransport answers CDP calls from canned per-method responses.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	events    chan *cdp.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string]json.RawMessage{}, events: make(chan *cdp.Event)}
}

func (f *fakeTransport) respond(method, body string) {
	f.mu.Lock()
	f.responses[method] = json.RawMessage(body)
	f.mu.Unlock()
}

func (f *fakeTransport) Call(ctx context.Context, sessionID, method string, params any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.responses[method]; ok {
		return res, nil
	}
	return []byte(`{}`), nil
}

func (f *fakeTransport) Event() <-chan *cdp.Event { return f.events }

func newResolver(t *testing.T, tr *fakeTransport) *Resolver {
	t.Helper()
	tr.respond("Target.attachToTarget", `{"sessionId":"sess-1"}`)
	s := session.New(tr, session.Config{Logger: slog.New(slog.DiscardHandler)})
	if err := s.Attach(context.Background(), "t1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return NewResolver(s, NewRegistry())
}

func TestResolveUnknownToken(t *testing.T) {
	r := newResolver(t, newFakeTransport())
	_, _, err := r.Resolve(context.Background(), "e9")
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("error: got %v, want ResolutionError", err)
	}
}

func TestResolveByBackendNode(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("DOM.resolveNode", `{"object":{"type":"object","objectId":"obj-42"}}`)
	r := newResolver(t, tr)
	r.Registry().Replace([]Entry{{Token: "ax1", BackendNodeID: 42}})

	id, entry, err := r.Resolve(context.Background(), "@ax1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "obj-42" {
		t.Fatalf("object id: got %q, want obj-42", id)
	}
	if entry.Token != "ax1" {
		t.Fatalf("entry: got %+v", entry)
	}
}

func TestResolveByMarker(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Runtime.evaluate", `{"result":{"type":"object","objectId":"doc-1"}}`)
	tr.respond("Runtime.callFunctionOn", `{"result":{"type":"object","subtype":"node","objectId":"el-7"}}`)
	r := newResolver(t, tr)
	r.Registry().Replace([]Entry{{Token: "e3", Role: "button", Name: "Save", Marker: 3}})

	id, _, err := r.Resolve(context.Background(), "e3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "el-7" {
		t.Fatalf("object id: got %q, want el-7", id)
	}
}

func TestResolveGoneElementAdvisesNewSnapshot(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Runtime.evaluate", `{"result":{"type":"object","objectId":"doc-1"}}`)
	// Both marker and role queries come back null.
	tr.respond("Runtime.callFunctionOn", `{"result":{"type":"object","subtype":"null"}}`)
	r := newResolver(t, tr)
	r.Registry().Replace([]Entry{{Token: "e1", Role: "button", Name: "Save", Marker: 1}})

	_, _, err := r.Resolve(context.Background(), "e1")
	if err == nil {
		t.Fatal("expected resolution failure")
	}
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("error type: got %T", err)
	}
	if want := "take a new snapshot"; !strings.Contains(err.Error(), want) {
		t.Fatalf("message %q should contain %q", err.Error(), want)
	}
}

func TestRoleQueryNeverRelaxesNamedEntries(t *testing.T) {
	// A named entry whose accessible name matches nothing must fail instead
	// of landing on whichever element shares the role: the null return has to
	// come before the unnamed any-with-role pick.
	named := findByRoleJS[strings.Index(findByRoleJS, "if (name)"):]
	nullIdx := strings.Index(named, "return null")
	anyIdx := strings.Index(named, "return pick(candidates)")
	if nullIdx == -1 || anyIdx == -1 || nullIdx > anyIdx {
		t.Fatalf("named branch must return null before the role-only fallback (null at %d, fallback at %d)", nullIdx, anyIdx)
	}
}
