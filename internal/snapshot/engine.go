// CLAUDE:SUMMARY Snapshot engine — renders role/aria outlines, DOM-walk fallback, content hashing, ref minting.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/dompilot/internal/ref"
	"github.com/hazyhaar/dompilot/internal/session"
)

// Format selects the snapshot rendering.
const (
	FormatRole = "role"
	FormatAria = "aria"
)

// Options parameterizes one snapshot.
type Options struct {
	// Format is role (default) or aria.
	Format string `json:"format,omitempty"`
	// InteractiveOnly emits only actionable nodes (role format).
	InteractiveOnly bool `json:"interactive_only,omitempty"`
	// Compact drops lines that carry no name, value, or actionable role.
	Compact bool `json:"compact,omitempty"`
	// MaxDepth caps outline depth; 0 means unlimited.
	MaxDepth int `json:"max_depth,omitempty"`
	// Limit caps aria-format node count (default 500, hard cap 2000).
	Limit int `json:"limit,omitempty"`
	// IfChanged returns a short unchanged response when the page content
	// hash matches the previous snapshot.
	IfChanged bool `json:"if_changed,omitempty"`
	// IncludeText appends the page's visible text and leading tables.
	IncludeText bool `json:"include_text,omitempty"`
	// TextBudget caps the appended text length in runes (default 8000).
	TextBudget int `json:"text_budget,omitempty"`
}

// Result is one snapshot response.
type Result struct {
	Format    string          `json:"format"`
	URL       string          `json:"url,omitempty"`
	Title     string          `json:"title,omitempty"`
	Body      string          `json:"body,omitempty"`
	PageText  string          `json:"page_text,omitempty"`
	Source    string          `json:"source,omitempty"` // ax or dom
	Refs      int             `json:"refs"`
	Lines     int             `json:"lines"`
	Hash      string          `json:"hash,omitempty"`
	Unchanged bool            `json:"unchanged,omitempty"`
	Dialog    *session.Dialog `json:"dialog,omitempty"`
}

// Config tunes the engine.
type Config struct {
	// MinAXLines is the sufficiency threshold: an AX outline with at most
	// this many meaningful lines triggers the DOM-walk fallback.
	MinAXLines int
	// DOMWalkCap bounds the nodes the fallback walk captures.
	DOMWalkCap int
	// MarkerAttr is the attribute stamped during DOM walks.
	MarkerAttr string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MinAXLines <= 0 {
		c.MinAXLines = 3
	}
	if c.DOMWalkCap <= 0 {
		c.DOMWalkCap = 1500
	}
	if c.MarkerAttr == "" {
		c.MarkerAttr = ref.MarkerAttr
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine produces snapshots and owns the ref registry they mint into.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	sess   *session.Session
	reg    *ref.Registry

	mu       sync.Mutex
	lastHash string
}

func NewEngine(sess *session.Session, reg *ref.Registry, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, logger: cfg.Logger, sess: sess, reg: reg}
}

// Take renders a snapshot and replaces the ref registry with the tokens it
// minted. With IfChanged set and an unchanged content hash, the body is
// omitted and the previous refs stay valid.
func (e *Engine) Take(ctx context.Context, opts Options) (*Result, error) {
	format := opts.Format
	if format == "" {
		format = FormatRole
	}

	res := &Result{Format: format, Dialog: e.sess.Dialogs().Active()}
	e.fillLocation(ctx, res)

	nodes, axErr := e.sess.AccessibilityTree(ctx)

	switch format {
	case FormatAria:
		if axErr != nil {
			return nil, axErr
		}
		body, entries := renderAria(nodes, opts.Limit)
		e.reg.Replace(entries)
		res.Body = withDialogBanner(res.Dialog, body)
		res.Source = "ax"
		res.Refs = len(entries)
		res.Lines = countLines(body)
		return res, nil

	case FormatRole:
		var outline []outlineNode
		source := "ax"
		if axErr == nil {
			outline = buildAXOutline(nodes)
		}
		if axErr != nil || countMeaningful(outline) <= e.cfg.MinAXLines {
			walked, err := e.domWalkOutline(ctx)
			if err == nil {
				outline = walked
				source = "dom"
			} else if axErr != nil {
				return nil, fmt.Errorf("snapshot: no usable source: %w", err)
			} else {
				e.logger.Debug("snapshot: dom walk fallback failed, keeping ax outline", "error", err)
			}
		}

		hash := hashOutline(outline)
		res.Hash = hash
		res.Source = source
		res.Lines = len(outline)

		e.mu.Lock()
		unchanged := opts.IfChanged && hash != "" && hash == e.lastHash
		e.lastHash = hash
		e.mu.Unlock()

		if unchanged {
			res.Unchanged = true
			res.Refs = e.reg.Len()
			return res, nil
		}

		body, entries := renderRole(outline, opts)
		e.reg.Replace(entries)
		res.Body = withDialogBanner(res.Dialog, body)
		res.Refs = len(entries)

		if opts.IncludeText {
			text, err := e.collectPageText(ctx, opts.TextBudget)
			if err != nil {
				e.logger.Debug("snapshot: page text failed", "error", err)
			} else {
				res.PageText = text
			}
		}
		return res, nil

	default:
		return nil, fmt.Errorf("snapshot: unknown format %q", format)
	}
}

// withDialogBanner prepends a notice when a native dialog is blocking the
// page: nothing else can be interacted with until it is answered.
func withDialogBanner(d *session.Dialog, body string) string {
	if d == nil {
		return body
	}
	return fmt.Sprintf("!! %s dialog open: %q. Respond with dialog_accept or dialog_dismiss before other actions.\n\n%s",
		d.Type, d.Message, body)
}

func (e *Engine) fillLocation(ctx context.Context, res *Result) {
	r, err := e.sess.Eval(ctx, `JSON.stringify({url: location.href, title: document.title})`, true)
	if err != nil || r.ExceptionDetails != nil || r.Result == nil {
		return
	}
	var loc struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if jsonErr := json.Unmarshal([]byte(r.Result.Value.Str()), &loc); jsonErr == nil {
		res.URL = loc.URL
		res.Title = loc.Title
	}
}

func hashOutline(outline []outlineNode) string {
	if len(outline) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical(outline)))
	return hex.EncodeToString(sum[:])
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
