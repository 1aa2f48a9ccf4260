package action

import (
	"fmt"
	"strings"
)

// keyDef carries what Input.dispatchKeyEvent needs for one logical key.
type keyDef struct {
	Key  string
	Code string
	Text string
	VK   int
}

// keyDefs maps logical key names (case-insensitive) to their protocol
// identity. Single printable characters not listed here are dispatched as
// text directly.
var keyDefs = map[string]keyDef{
	"enter":      {Key: "Enter", Code: "Enter", Text: "\r", VK: 13},
	"tab":        {Key: "Tab", Code: "Tab", VK: 9},
	"escape":     {Key: "Escape", Code: "Escape", VK: 27},
	"backspace":  {Key: "Backspace", Code: "Backspace", VK: 8},
	"delete":     {Key: "Delete", Code: "Delete", VK: 46},
	"arrowleft":  {Key: "ArrowLeft", Code: "ArrowLeft", VK: 37},
	"arrowup":    {Key: "ArrowUp", Code: "ArrowUp", VK: 38},
	"arrowright": {Key: "ArrowRight", Code: "ArrowRight", VK: 39},
	"arrowdown":  {Key: "ArrowDown", Code: "ArrowDown", VK: 40},
	"home":       {Key: "Home", Code: "Home", VK: 36},
	"end":        {Key: "End", Code: "End", VK: 35},
	"pageup":     {Key: "PageUp", Code: "PageUp", VK: 33},
	"pagedown":   {Key: "PageDown", Code: "PageDown", VK: 34},
	"space":      {Key: " ", Code: "Space", Text: " ", VK: 32},
}

func init() {
	for i := 1; i <= 12; i++ {
		keyDefs[fmt.Sprintf("f%d", i)] = keyDef{
			Key:  fmt.Sprintf("F%d", i),
			Code: fmt.Sprintf("F%d", i),
			VK:   111 + i,
		}
	}
}

// Modifier bits per the Input domain.
const (
	modAlt   = 1
	modCtrl  = 2
	modMeta  = 4
	modShift = 8
)

var modifierNames = map[string]int{
	"alt":     modAlt,
	"ctrl":    modCtrl,
	"control": modCtrl,
	"meta":    modMeta,
	"cmd":     modMeta,
	"shift":   modShift,
}

// parseKey splits "ctrl+shift+a" into a modifier mask and the final key
// definition. Unknown multi-character keys fail; a single character falls
// through as literal text.
func parseKey(spec string) (int, keyDef, error) {
	parts := strings.Split(spec, "+")
	mods := 0
	for _, p := range parts[:len(parts)-1] {
		bit, ok := modifierNames[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			return 0, keyDef{}, &ValidationError{Field: "key", Reason: fmt.Sprintf("unknown modifier %q", p)}
		}
		mods |= bit
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" {
		return 0, keyDef{}, &ValidationError{Field: "key", Reason: "empty key"}
	}
	if def, ok := keyDefs[strings.ToLower(last)]; ok {
		return mods, def, nil
	}
	if len([]rune(last)) == 1 {
		return mods, keyDef{Key: last, Text: last}, nil
	}
	return 0, keyDef{}, &ValidationError{Field: "key", Reason: fmt.Sprintf("unknown key %q", last)}
}
