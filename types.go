package dompilot

import (
	"github.com/hazyhaar/dompilot/internal/action"
	"github.com/hazyhaar/dompilot/internal/session"
	"github.com/hazyhaar/dompilot/internal/snapshot"
	"github.com/hazyhaar/dompilot/internal/trail"
)

// Re-exported request/response types so callers only import this package.
type (
	ActionRequest     = action.Request
	ActionResult      = action.Result
	FieldValue        = action.FieldValue
	WaitCondition     = action.WaitCondition
	SnapshotOptions   = snapshot.Options
	SnapshotResult    = snapshot.Result
	ScreenshotOptions = session.ScreenshotOptions
	NavigationResult  = session.NavigationResult
	ConsoleEntry      = session.ConsoleEntry
	Dialog            = session.Dialog
	StorageType       = session.StorageType
	TrailRecord       = trail.Record
)

const (
	LocalStorage   = session.LocalStorage
	SessionStorage = session.SessionStorage

	FormatRole = snapshot.FormatRole
	FormatAria = snapshot.FormatAria
)

// StorageEntries is the storage read response: all pairs plus the count, so
// callers can show "12 keys" without re-counting client-side.
type StorageEntries struct {
	Type    StorageType       `json:"type"`
	Entries map[string]string `json:"entries"`
	Count   int               `json:"count"`
}

// Status reports the facade's current attachment and page state.
type Status struct {
	Available bool    `json:"available"`
	Attached  bool    `json:"attached"`
	URL       string  `json:"url,omitempty"`
	Title     string  `json:"title,omitempty"`
	Dialog    *Dialog `json:"dialog,omitempty"`
}
