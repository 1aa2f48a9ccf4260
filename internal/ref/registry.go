// Package ref maps short-lived snapshot ref tokens (e1, ax3, ...) back to
// live page elements. Tokens are only meaningful against the snapshot that
// minted them; every new snapshot replaces the registry wholesale.
package ref

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// ResolutionError reports a token that could not be mapped back to a live
// element. The message always points the caller at a fresh snapshot, since
// stale tokens are by far the most common cause.
type ResolutionError struct {
	Token  string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("ref: %s: %s (the page may have changed since the snapshot; take a new snapshot and retry)", e.Token, e.Reason)
}

// Entry records everything a snapshot knew about one referenced element.
// Resolution tries the cheapest handle first: a backend node ID (aria
// snapshots), then the stamped marker attribute (DOM-walk snapshots), then a
// role + accessible-name query (role snapshots).
type Entry struct {
	Token string
	Role  string
	Name  string
	// Ordinal is the element's index among same role+name elements in
	// snapshot order, so repeated "button Submit" rows stay addressable.
	Ordinal int
	// Marker is the value stamped into the marker attribute during a DOM
	// walk; zero means no marker was stamped.
	Marker int
	// BackendNodeID is set for refs minted from accessibility nodes.
	BackendNodeID proto.DOMBackendNodeID
}

// Registry is the token table for the most recent snapshot.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	minted  int64 // snapshot generation, for diagnostics
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

// Replace installs the token table of a new snapshot, dropping all previous
// tokens.
func (r *Registry) Replace(entries []Entry) {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Token] = e
	}
	r.mu.Lock()
	r.entries = m
	r.minted++
	r.mu.Unlock()
}

// Lookup returns the entry behind a normalized token.
func (r *Registry) Lookup(token string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[token]
	return e, ok
}

// Len returns the number of live tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

var tokenRe = regexp.MustCompile(`^(e|ax)\d+$`)

// Normalize strips the decorations callers habitually add ("@e12",
// "ref=e12") and validates the token shape.
func Normalize(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	token = strings.TrimPrefix(token, "@")
	token = strings.TrimPrefix(token, "ref=")
	if !tokenRe.MatchString(token) {
		return "", &ResolutionError{Token: raw, Reason: "not a valid ref token"}
	}
	return token, nil
}
