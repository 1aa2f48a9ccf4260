package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// ErrNoDialog is returned when a dialog response is requested while no
// native dialog is open.
var ErrNoDialog = errors.New("session: no active dialog")

// Dialog describes one native JavaScript dialog (alert/confirm/prompt/
// beforeunload). Closed dialogs carry the outcome fields.
type Dialog struct {
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	DefaultPrompt string    `json:"default_prompt,omitempty"`
	URL           string    `json:"url,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`

	Accepted  *bool     `json:"accepted,omitempty"`
	UserInput string    `json:"user_input,omitempty"`
	ClosedAt  time.Time `json:"closed_at,omitzero"`
}

// DialogTracker holds at most one active dialog plus a bounded history of
// closed ones. Pages cannot stack native dialogs, so a new opening event
// while one is tracked means we missed the close: the old one is retired
// into history.
type DialogTracker struct {
	maxHistory int

	mu      sync.Mutex
	active  *Dialog
	history []Dialog
}

func NewDialogTracker(maxHistory int) *DialogTracker {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &DialogTracker{maxHistory: maxHistory}
}

// Active returns a copy of the open dialog, or nil.
func (t *DialogTracker) Active() *Dialog {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return nil
	}
	d := *t.active
	return &d
}

// History returns the closed dialogs, most recent last.
func (t *DialogTracker) History() []Dialog {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Dialog, len(t.history))
	copy(out, t.history)
	return out
}

func (t *DialogTracker) opened(d Dialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		t.retireLocked(*t.active)
	}
	t.active = &d
}

func (t *DialogTracker) closed(accepted bool, userInput string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return
	}
	d := *t.active
	d.Accepted = &accepted
	d.UserInput = userInput
	d.ClosedAt = time.Now()
	t.retireLocked(d)
	t.active = nil
}

func (t *DialogTracker) retireLocked(d Dialog) {
	t.history = append(t.history, d)
	if len(t.history) > t.maxHistory {
		t.history = t.history[len(t.history)-t.maxHistory:]
	}
}

// wire subscribes the tracker to the page's dialog events and returns the
// combined cancel func.
func (t *DialogTracker) wire(bus *Bus) func() {
	off1 := bus.Subscribe("Page.javascriptDialogOpening", func(params []byte) {
		var ev proto.PageJavascriptDialogOpening
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		t.opened(Dialog{
			Type:          string(ev.Type),
			Message:       ev.Message,
			DefaultPrompt: ev.DefaultPrompt,
			URL:           ev.URL,
			OpenedAt:      time.Now(),
		})
	})
	off2 := bus.Subscribe("Page.javascriptDialogClosed", func(params []byte) {
		var ev proto.PageJavascriptDialogClosed
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		t.closed(ev.Result, ev.UserInput)
	})
	return func() {
		off1()
		off2()
	}
}

// HandleDialog accepts or dismisses the active native dialog. promptText is
// only meaningful for prompt dialogs and only when accepting.
func (s *Session) HandleDialog(ctx context.Context, accept bool, promptText string) (*Dialog, error) {
	active := s.dialogs.Active()
	if active == nil {
		return nil, ErrNoDialog
	}
	req := proto.PageHandleJavaScriptDialog{Accept: accept}
	if accept && promptText != "" {
		req.PromptText = promptText
	}
	if err := req.Call(s.c(ctx)); err != nil {
		return nil, fmt.Errorf("session: handle dialog: %w", err)
	}
	// The closed event normally updates the tracker; record proactively in
	// case the embedder does not emit it.
	s.dialogs.closed(accept, promptText)
	return active, nil
}
