// Package snapshot renders the attached page as a compact, ref-annotated
// outline an agent can read and act on. The primary source is the
// accessibility tree; pages with a hostile or empty AX tree fall back to a
// scripted DOM walk that derives the same role/name vocabulary.
package snapshot

import (
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// outlineNode is one line of the intermediate outline both sources (AX tree,
// DOM walk) normalize into.
type outlineNode struct {
	Depth int
	Role  string
	Name  string
	Value string
	Props []string

	// BackendNodeID is set for AX-sourced nodes, Marker for DOM-walk nodes.
	BackendNodeID proto.DOMBackendNodeID
	Marker        int
}

// interactiveRoles marks the roles worth minting refs for.
var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"textbox":          true,
	"searchbox":        true,
	"checkbox":         true,
	"radio":            true,
	"combobox":         true,
	"listbox":          true,
	"option":           true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"slider":           true,
	"spinbutton":       true,
	"switch":           true,
	"tab":              true,
	"textfield":        true,
}

func (n outlineNode) interactive() bool { return interactiveRoles[n.Role] }

// meaningful reports whether the line tells the reader anything: a name, a
// value, or an actionable role. Pure structure lines don't count toward the
// sufficiency threshold.
func (n outlineNode) meaningful() bool {
	return n.Name != "" || n.Value != "" || n.interactive()
}

// wrapperRoles are structural roles that carry no information when unnamed;
// their children are lifted to the parent depth instead.
var wrapperRoles = map[string]bool{
	"generic":          true,
	"group":            true,
	"none":             true,
	"presentation":     true,
	"InlineTextBox":    true,
	"LineBreak":        true,
	"GenericContainer": true,
}

// buildAXOutline flattens the full AX tree into outline order. Ignored and
// presentational nodes are dropped entirely; unnamed wrapper nodes are not
// emitted but their children stay at the would-be depth.
func buildAXOutline(nodes []*proto.AccessibilityAXNode) []outlineNode {
	if len(nodes) == 0 {
		return nil
	}
	byID := make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes))
	referenced := map[proto.AccessibilityAXNodeID]bool{}
	for _, n := range nodes {
		byID[n.NodeID] = n
		for _, c := range n.ChildIDs {
			referenced[c] = true
		}
	}

	var root *proto.AccessibilityAXNode
	for _, n := range nodes {
		if !referenced[n.NodeID] {
			root = n
			break
		}
	}
	if root == nil {
		root = nodes[0]
	}

	var out []outlineNode
	var walk func(n *proto.AccessibilityAXNode, depth int)
	walk = func(n *proto.AccessibilityAXNode, depth int) {
		if n == nil {
			return
		}
		if n.Ignored {
			for _, c := range n.ChildIDs {
				walk(byID[c], depth)
			}
			return
		}
		role := axString(n.Role)
		name := strings.TrimSpace(axString(n.Name))
		childDepth := depth

		switch {
		case role == "none" || role == "presentation":
			// presentational: drop the node, keep children in place
		case wrapperRoles[role] && name == "":
			// unnamed wrapper: same — children at the same depth
		default:
			out = append(out, outlineNode{
				Depth:         depth,
				Role:          role,
				Name:          name,
				Value:         strings.TrimSpace(axString(n.Value)),
				Props:         axProps(n.Properties),
				BackendNodeID: n.BackendDOMNodeID,
			})
			childDepth = depth + 1
		}
		for _, c := range n.ChildIDs {
			walk(byID[c], childDepth)
		}
	}
	walk(root, 0)
	return out
}

func axString(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	return v.Value.Str()
}

// axProps renders the states worth surfacing in the outline. Booleans appear
// bare when true ("disabled"), valued states as key=value.
func axProps(props []*proto.AccessibilityAXProperty) []string {
	var out []string
	for _, p := range props {
		if p == nil || p.Value == nil {
			continue
		}
		switch p.Name {
		case proto.AccessibilityAXPropertyNameDisabled,
			proto.AccessibilityAXPropertyNameFocused,
			proto.AccessibilityAXPropertyNameRequired,
			proto.AccessibilityAXPropertyNameSelected:
			if p.Value.Value.Bool() {
				out = append(out, string(p.Name))
			}
		case proto.AccessibilityAXPropertyNameChecked,
			proto.AccessibilityAXPropertyNameExpanded,
			proto.AccessibilityAXPropertyNamePressed:
			if s := p.Value.Value.Str(); s != "" && s != "false" {
				out = append(out, string(p.Name)+"="+s)
			} else if p.Value.Value.Bool() {
				out = append(out, string(p.Name))
			}
		}
	}
	return out
}

// countMeaningful counts outline lines that carry information, used for the
// AX-sufficiency decision.
func countMeaningful(outline []outlineNode) int {
	n := 0
	for _, node := range outline {
		if node.meaningful() {
			n++
		}
	}
	return n
}
