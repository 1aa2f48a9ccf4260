package dompilot

import (
	"github.com/hazyhaar/dompilot/internal/action"
	"github.com/hazyhaar/dompilot/internal/ref"
	"github.com/hazyhaar/dompilot/internal/session"
)

// The error taxonomy callers branch on. Everything else that crosses the
// facade is an uncategorised protocol or transport failure.
var (
	// ErrNotAttached: a command was issued while no target is attached.
	ErrNotAttached = session.ErrNotAttached
	// ErrNoDialog: a dialog response was requested with no dialog open.
	ErrNoDialog = session.ErrNoDialog
)

// RefResolutionError: a snapshot ref token could not be mapped back to a
// live element.
type RefResolutionError = ref.ResolutionError

// ActionTimeoutError: an action exhausted its time budget.
type ActionTimeoutError = action.TimeoutError

// ValidationError: a request that can never succeed as written.
type ValidationError = action.ValidationError

// ProtocolError: an uncategorised CDP failure, wrapping the transport error.
type ProtocolError = session.ProtocolError
