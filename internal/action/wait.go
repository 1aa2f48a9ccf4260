package action

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WaitCondition describes what a wait action is waiting for. Exactly one
// field should be set; DelayMS composes with nothing.
type WaitCondition struct {
	// DelayMS sleeps unconditionally.
	DelayMS int `json:"delay_ms,omitempty"`
	// TextPresent waits until the page text contains the string.
	TextPresent string `json:"text_present,omitempty"`
	// TextAbsent waits until the page text no longer contains the string.
	TextAbsent string `json:"text_absent,omitempty"`
	// Selector waits until querySelector matches.
	Selector string `json:"selector,omitempty"`
	// ReadyState waits until document.readyState has reached the given
	// stage ("loading", "interactive", "complete"). A page already past the
	// stage satisfies the condition immediately.
	ReadyState string `json:"ready_state,omitempty"`
	// URLContains waits until location.href contains the string.
	URLContains string `json:"url_contains,omitempty"`
	// Expression waits until the JavaScript expression is truthy.
	Expression string `json:"expression,omitempty"`
}

func (c *WaitCondition) describe() string {
	switch {
	case c.DelayMS > 0:
		return fmt.Sprintf("delay %dms", c.DelayMS)
	case c.TextPresent != "":
		return fmt.Sprintf("text %q present", c.TextPresent)
	case c.TextAbsent != "":
		return fmt.Sprintf("text %q absent", c.TextAbsent)
	case c.Selector != "":
		return fmt.Sprintf("selector %q", c.Selector)
	case c.ReadyState != "":
		return fmt.Sprintf("readyState %q", c.ReadyState)
	case c.URLContains != "":
		return fmt.Sprintf("url contains %q", c.URLContains)
	case c.Expression != "":
		return "expression truthy"
	default:
		return "nothing"
	}
}

// probe builds the JavaScript that answers "is the condition met" as a
// boolean. Caller strings travel as JSON literals, never by interpolation
// into identifier position.
func (c *WaitCondition) probe() (string, error) {
	switch {
	case c.TextPresent != "":
		return fmt.Sprintf(`(document.body ? document.body.innerText : '').includes(%s)`, jsQuote(c.TextPresent)), nil
	case c.TextAbsent != "":
		return fmt.Sprintf(`!(document.body ? document.body.innerText : '').includes(%s)`, jsQuote(c.TextAbsent)), nil
	case c.Selector != "":
		return fmt.Sprintf(`document.querySelector(%s) !== null`, jsQuote(c.Selector)), nil
	case c.ReadyState != "":
		switch c.ReadyState {
		case "loading", "interactive", "complete":
		default:
			return "", &ValidationError{Field: "wait.ready_state", Reason: "must be loading, interactive, or complete"}
		}
		// Readiness is ordered: waiting for "interactive" on a page that is
		// already "complete" holds immediately.
		return fmt.Sprintf(`(() => { const order = ['loading', 'interactive', 'complete']; return order.indexOf(document.readyState) >= order.indexOf(%s); })()`, jsQuote(c.ReadyState)), nil
	case c.URLContains != "":
		return fmt.Sprintf(`location.href.includes(%s)`, jsQuote(c.URLContains)), nil
	case c.Expression != "":
		return fmt.Sprintf(`Boolean(%s)`, c.Expression), nil
	default:
		return "", &ValidationError{Field: "wait", Reason: "empty condition"}
	}
}

// waitFor polls the condition at a fixed interval until it holds or the
// action budget runs out. The timeout error names the condition so the
// caller sees what never happened.
func (e *Executor) waitFor(ctx context.Context, req Request) (*Result, error) {
	cond := req.Wait

	if cond.DelayMS > 0 {
		select {
		case <-time.After(time.Duration(cond.DelayMS) * time.Millisecond):
			return &Result{Kind: req.Kind, Data: map[string]string{"waited": cond.describe()}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	expr, err := cond.probe()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ticker := time.NewTicker(e.cfg.WaitPoll)
	defer ticker.Stop()
	for {
		res, err := e.sess.Eval(ctx, expr, true)
		if err != nil {
			return nil, err
		}
		if res.ExceptionDetails == nil && res.Result != nil && res.Result.Value.Bool() {
			return &Result{
				Kind: req.Kind,
				Data: map[string]any{"waited": cond.describe(), "elapsed_ms": time.Since(start).Milliseconds()},
			}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, &TimeoutError{Op: "wait for " + cond.describe(), After: time.Since(start).Round(time.Millisecond)}
		}
	}
}

// jsQuote renders s as a JavaScript string literal via JSON encoding.
func jsQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
