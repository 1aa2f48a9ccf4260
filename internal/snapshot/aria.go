package snapshot

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dompilot/internal/ref"
)

const (
	defaultAriaLimit = 500
	maxAriaLimit     = 2000
)

// renderAria produces the flat aria-format listing: one depth-tagged line
// per AX node starting at the tree root (the node nothing references), refs
// ax1, ax2, ... for nodes backed by a DOM node.
func renderAria(nodes []*proto.AccessibilityAXNode, limit int) (string, []ref.Entry) {
	if limit <= 0 {
		limit = defaultAriaLimit
	}
	if limit > maxAriaLimit {
		limit = maxAriaLimit
	}

	outline := buildAXOutline(nodes)
	var b strings.Builder
	var entries []ref.Entry
	n := 0
	emitted := 0

	for _, node := range outline {
		if emitted >= limit {
			fmt.Fprintf(&b, "... truncated at %d nodes\n", limit)
			break
		}
		token := ""
		if node.BackendNodeID != 0 {
			n++
			token = fmt.Sprintf("ax%d", n)
			entries = append(entries, ref.Entry{
				Token:         token,
				Role:          node.Role,
				Name:          node.Name,
				BackendNodeID: node.BackendNodeID,
			})
		}
		fmt.Fprintf(&b, "[%d] %s", node.Depth, node.Role)
		if node.Name != "" {
			fmt.Fprintf(&b, " %q", node.Name)
		}
		if token != "" {
			fmt.Fprintf(&b, " [%s]", token)
		}
		if node.Value != "" {
			fmt.Fprintf(&b, " value=%q", node.Value)
		}
		b.WriteByte('\n')
		emitted++
	}
	return b.String(), entries
}
