package session

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// ConsoleEntry is one captured console message or uncaught exception.
type ConsoleEntry struct {
	Type string    `json:"type"` // log, warning, error, exception, ...
	Text string    `json:"text"`
	URL  string    `json:"url,omitempty"`
	At   time.Time `json:"at"`
}

// ConsoleBuffer retains the most recent page console output in a bounded
// ring. Chatty pages would otherwise grow memory without bound.
type ConsoleBuffer struct {
	max int

	mu      sync.Mutex
	entries []ConsoleEntry
}

func NewConsoleBuffer(max int) *ConsoleBuffer {
	if max <= 0 {
		max = 500
	}
	return &ConsoleBuffer{max: max}
}

func (b *ConsoleBuffer) add(e ConsoleEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
}

// Recent returns up to n entries, most recent last. n <= 0 returns all
// retained entries.
func (b *ConsoleBuffer) Recent(n int) []ConsoleEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]ConsoleEntry, n)
	copy(out, b.entries[len(b.entries)-n:])
	return out
}

// Clear drops all retained entries.
func (b *ConsoleBuffer) Clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

func (b *ConsoleBuffer) wire(bus *Bus) func() {
	off1 := bus.Subscribe("Runtime.consoleAPICalled", func(params []byte) {
		var ev proto.RuntimeConsoleAPICalled
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		b.add(ConsoleEntry{
			Type: string(ev.Type),
			Text: formatConsoleArgs(ev.Args),
			At:   time.Now(),
		})
	})
	off2 := bus.Subscribe("Runtime.exceptionThrown", func(params []byte) {
		var ev proto.RuntimeExceptionThrown
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		b.add(ConsoleEntry{
			Type: "exception",
			Text: formatException(ev.ExceptionDetails),
			URL:  ev.ExceptionDetails.URL,
			At:   time.Now(),
		})
	})
	return func() {
		off1()
		off2()
	}
}

func formatConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, formatRemoteObject(a))
	}
	return strings.Join(parts, " ")
}

func formatRemoteObject(o *proto.RuntimeRemoteObject) string {
	if o == nil {
		return ""
	}
	if o.Value.Val() != nil {
		return o.Value.String()
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}

func formatException(d *proto.RuntimeExceptionDetails) string {
	if d == nil {
		return "uncaught exception"
	}
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}
