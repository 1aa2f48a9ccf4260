package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
)

// domWalkNode is the wire shape the in-page walker returns per element.
type domWalkNode struct {
	Depth  int    `json:"d"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	Value  string `json:"val,omitempty"`
	Marker int    `json:"m"`
}

// domWalkOutline runs the scripted DOM walk and normalizes its output into
// outline nodes. Each captured element is stamped with the marker attribute
// so later ref resolution is a single querySelector.
func (e *Engine) domWalkOutline(ctx context.Context) ([]outlineNode, error) {
	expr := fmt.Sprintf("(%s)(%q, %d)", domWalkJS, e.cfg.MarkerAttr, e.cfg.DOMWalkCap)
	res, err := e.sess.Eval(ctx, expr, true)
	if err != nil {
		return nil, fmt.Errorf("snapshot: dom walk: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("snapshot: dom walk script: %s", res.ExceptionDetails.Text)
	}
	if res.Result == nil {
		return nil, fmt.Errorf("snapshot: dom walk returned nothing")
	}

	var wire []domWalkNode
	if err := json.Unmarshal([]byte(res.Result.Value.Str()), &wire); err != nil {
		return nil, fmt.Errorf("snapshot: decode dom walk: %w", err)
	}

	out := make([]outlineNode, 0, len(wire))
	for _, n := range wire {
		out = append(out, outlineNode{
			Depth:  n.Depth,
			Role:   n.Role,
			Name:   n.Name,
			Value:  n.Value,
			Marker: n.Marker,
		})
	}
	return out, nil
}

// domWalkJS derives roles from tags (and input types) and accessible names
// through the same chain the AX tree would use: aria-label, aria-labelledby,
// alt, associated label, title/placeholder, then truncated text content.
// Captured elements get a sequential marker attribute value.
const domWalkJS = `function(attr, cap) {
	const implicit = {
		button: 'button', select: 'combobox', textarea: 'textbox',
		img: 'img', nav: 'navigation', main: 'main', header: 'banner',
		footer: 'contentinfo', aside: 'complementary', form: 'form',
		table: 'table', h1: 'heading', h2: 'heading', h3: 'heading',
		h4: 'heading', h5: 'heading', h6: 'heading', option: 'option',
		li: 'listitem', ul: 'list', ol: 'list', dialog: 'dialog',
		article: 'article', section: 'region', summary: 'button'
	};
	const inputRoles = {
		button: 'button', submit: 'button', reset: 'button', image: 'button',
		checkbox: 'checkbox', radio: 'radio', range: 'slider',
		number: 'spinbutton', search: 'searchbox', hidden: ''
	};
	const roleOf = (el) => {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit.split(/\s+/)[0];
		const tag = el.tagName.toLowerCase();
		if (tag === 'a') return el.hasAttribute('href') ? 'link' : '';
		if (tag === 'input') {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			return inputRoles[t] !== undefined ? inputRoles[t] : 'textbox';
		}
		return implicit[tag] || '';
	};
	const clean = (s) => (s || '').trim().replace(/\s+/g, ' ');
	const nameOf = (el) => {
		const aria = el.getAttribute('aria-label');
		if (aria) return clean(aria);
		const labelled = el.getAttribute('aria-labelledby');
		if (labelled) {
			const parts = labelled.split(/\s+/)
				.map(id => { const n = document.getElementById(id); return n ? clean(n.textContent) : ''; })
				.filter(Boolean);
			if (parts.length) return parts.join(' ');
		}
		if (el.alt) return clean(el.alt);
		if (el.labels && el.labels.length) return clean(el.labels[0].textContent);
		if (el.title) return clean(el.title);
		if (el.placeholder) return clean(el.placeholder);
		return clean(el.textContent).slice(0, 120);
	};
	const valueOf = (el) => {
		const tag = el.tagName.toLowerCase();
		if (tag === 'input' || tag === 'textarea') {
			const t = (el.getAttribute('type') || '').toLowerCase();
			if (t === 'password') return '';
			if (t === 'checkbox' || t === 'radio') return el.checked ? 'checked' : '';
			return (el.value || '').slice(0, 120);
		}
		if (tag === 'select') {
			const o = el.selectedOptions && el.selectedOptions[0];
			return o ? clean(o.textContent) : '';
		}
		return '';
	};
	const visible = (el) => {
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 || r.height > 0;
	};
	const out = [];
	let marker = 0;
	const walk = (el, depth) => {
		if (out.length >= cap) return;
		for (const child of el.children) {
			if (out.length >= cap) return;
			if (!visible(child)) continue;
			const role = roleOf(child);
			let d = depth;
			if (role) {
				marker++;
				child.setAttribute(attr, String(marker));
				out.push({ d: depth, role: role, name: nameOf(child), val: valueOf(child), m: marker });
				d = depth + 1;
			}
			walk(child, d);
		}
	};
	if (document.body) walk(document.body, 0);
	return JSON.stringify(out);
}`
