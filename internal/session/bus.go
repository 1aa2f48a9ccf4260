package session

import (
	"log/slog"
	"sync"

	"github.com/go-rod/rod/lib/cdp"
)

// Bus fans CDP events out to method subscribers. Dispatch runs on the pump
// goroutine, so callbacks must return quickly (buffer a channel, flip a flag).
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[int]func(params []byte)
	next int
	done chan struct{}
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   map[string]map[int]func([]byte){},
		done:   make(chan struct{}),
	}
}

// Pump drains the transport event channel until it closes.
func (b *Bus) Pump(events <-chan *cdp.Event) {
	for ev := range events {
		b.dispatch(ev.Method, ev.Params)
	}
	close(b.done)
}

// Done is closed once the transport event stream ends.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Subscribe registers fn for a CDP event method and returns a cancel func.
func (b *Bus) Subscribe(method string, fn func(params []byte)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[method] == nil {
		b.subs[method] = map[int]func([]byte){}
	}
	id := b.next
	b.next++
	b.subs[method][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[method], id)
	}
}

func (b *Bus) dispatch(method string, params []byte) {
	b.mu.RLock()
	fns := make([]func([]byte), 0, len(b.subs[method]))
	for _, fn := range b.subs[method] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.deliver(method, fn, params)
	}
}

// deliver isolates subscriber panics so one bad callback cannot starve the
// rest of the event stream.
func (b *Bus) deliver(method string, fn func([]byte), params []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("session: event subscriber panicked", "method", method, "panic", r)
		}
	}()
	fn(params)
}
