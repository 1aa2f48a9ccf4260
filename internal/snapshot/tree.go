package snapshot

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/dompilot/internal/ref"
)

// renderRole turns an outline into the role-format snapshot body and the ref
// entries to install. Tokens run e1, e2, ... in traversal order; only
// actionable nodes get one.
func renderRole(outline []outlineNode, opts Options) (string, []ref.Entry) {
	var b strings.Builder
	var entries []ref.Entry
	ordinals := map[string]int{} // "role\x00name" -> next ordinal
	n := 0

	for _, node := range outline {
		if opts.MaxDepth > 0 && node.Depth >= opts.MaxDepth {
			continue
		}
		if opts.InteractiveOnly && !node.interactive() {
			continue
		}
		if opts.Compact && !node.meaningful() {
			continue
		}

		token := ""
		if node.interactive() {
			n++
			token = fmt.Sprintf("e%d", n)
			key := node.Role + "\x00" + node.Name
			entries = append(entries, ref.Entry{
				Token:         token,
				Role:          node.Role,
				Name:          node.Name,
				Ordinal:       ordinals[key],
				Marker:        node.Marker,
				BackendNodeID: node.BackendNodeID,
			})
			ordinals[key]++
		}

		depth := node.Depth
		if opts.InteractiveOnly {
			depth = 0
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString("- ")
		b.WriteString(node.Role)
		if node.Name != "" {
			fmt.Fprintf(&b, " %q", node.Name)
		}
		if token != "" {
			fmt.Fprintf(&b, " [%s]", token)
		}
		if node.Value != "" {
			fmt.Fprintf(&b, " value=%q", node.Value)
		}
		for _, p := range node.Props {
			b.WriteByte(' ')
			b.WriteString(p)
		}
		b.WriteByte('\n')
	}
	return b.String(), entries
}

// canonical renders the outline in a layout-independent form for content
// hashing: filters and ref numbering must not affect change detection.
func canonical(outline []outlineNode) string {
	var b strings.Builder
	for _, n := range outline {
		fmt.Fprintf(&b, "%d|%s|%s|%s\n", n.Depth, n.Role, n.Name, n.Value)
	}
	return b.String()
}
