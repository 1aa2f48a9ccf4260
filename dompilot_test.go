package dompilot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/go-rod/rod/lib/cdp"

	"github.com/hazyhaar/dompilot/internal/session"
)

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

func newTestPilot(t *testing.T, tr *fakeTransport) *Pilot {
	t.Helper()
	tr.respond("Target.attachToTarget", `{"sessionId":"sess-1"}`)
	logger := slog.New(slog.DiscardHandler)
	sess := session.New(tr, session.Config{Logger: logger})
	if err := sess.Attach(context.Background(), "t1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return NewFromSession(Config{}, sess, logger)
}

func TestStatusAttached(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Page.getNavigationHistory",
		`{"currentIndex":0,"entries":[{"id":1,"url":"https://example.com/"}]}`)
	tr.respond("Runtime.evaluate", `{"result":{"type":"string","value":"Example"}}`)
	p := newTestPilot(t, tr)

	st := p.Status(context.Background())
	if !st.Available || !st.Attached {
		t.Fatalf("status: got %+v", st)
	}
	if st.URL != "https://example.com/" || st.Title != "Example" {
		t.Fatalf("location: got %q %q", st.URL, st.Title)
	}
}

func TestStatusWithoutBrowser(t *testing.T) {
	p := New(Config{}, slog.New(slog.DiscardHandler))
	st := p.Status(context.Background())
	if st.Available || st.Attached {
		t.Fatalf("status: got %+v, want unavailable", st)
	}
}

func TestActValidationSurfaces(t *testing.T) {
	p := newTestPilot(t, newFakeTransport())
	_, err := p.Act(context.Background(), ActionRequest{Kind: "click"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error: got %v, want ValidationError", err)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	tr := newFakeTransport()
	tr.respond("Runtime.evaluate",
		`{"result":{"type":"string","value":"{\"theme\":\"dark\"}"}}`)
	p := newTestPilot(t, tr)

	got, err := p.Storage(context.Background(), LocalStorage)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	if got.Count != 1 || got.Entries["theme"] != "dark" {
		t.Fatalf("entries: got %+v", got)
	}

	if _, err := p.Storage(context.Background(), "indexedDB"); err == nil {
		t.Fatal("indexedDB should be rejected")
	}
}

func TestConsoleLogsEmptyWithoutSession(t *testing.T) {
	p := New(Config{}, slog.New(slog.DiscardHandler))
	if logs := p.ConsoleLogs(10); logs != nil {
		t.Fatalf("logs: got %v, want nil", logs)
	}
}

func TestTrailUnconfigured(t *testing.T) {
	p := newTestPilot(t, newFakeTransport())
	recs, err := p.Trail(context.Background(), 10)
	if err != nil || recs != nil {
		t.Fatalf("trail: got %v, %v", recs, err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()
	if cfg.NavigateTimeoutMS != 30_000 {
		t.Fatalf("navigate timeout: got %d", cfg.NavigateTimeoutMS)
	}
	if cfg.LongActionTimeoutMS != 60_000 {
		t.Fatalf("long timeout: got %d", cfg.LongActionTimeoutMS)
	}
	if cfg.MinAXLines != 3 {
		t.Fatalf("min ax lines: got %d", cfg.MinAXLines)
	}
}

func TestLoadConfigFileMissingPath(t *testing.T) {
	cfg, err := LoadConfigFile("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if cfg.TrailPath != "" {
		t.Fatalf("config: got %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := t.TempDir() + "/dompilot.yaml"
	data := []byte("browser:\n  headless: true\nnavigate_timeout_ms: 5000\ntrail_path: /tmp/trail.db\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Browser.Headless || cfg.NavigateTimeoutMS != 5000 || cfg.TrailPath != "/tmp/trail.db" {
		t.Fatalf("config: got %+v", cfg)
	}
}
