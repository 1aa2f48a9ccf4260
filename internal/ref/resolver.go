// CLAUDE:SUMMARY Ref resolver — maps snapshot tokens to live elements via backend node, marker attr, or role+name.
package ref

import (
	"context"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/dompilot/internal/session"
)

// MarkerAttr is the attribute stamped on elements during a DOM-walk snapshot
// so refs resolve in O(1) while the DOM is unchanged.
const MarkerAttr = "data-dompilot-ref"

// Resolver turns registry entries back into live remote objects.
type Resolver struct {
	sess *session.Session
	reg  *Registry
}

func NewResolver(sess *session.Session, reg *Registry) *Resolver {
	return &Resolver{sess: sess, reg: reg}
}

// Registry exposes the backing token table.
func (r *Resolver) Registry() *Registry { return r.reg }

// Resolve maps a raw token to a live element handle. The caller owns the
// returned object ID and should release it after use.
//
// Fallback order is fixed: backend node ID, marker attribute, then a
// role + accessible-name query (exact name, then substring; only an unnamed
// entry may relax to any element with the role). A named entry whose name no
// longer matches anything fails rather than landing on an unrelated element.
func (r *Resolver) Resolve(ctx context.Context, rawToken string) (proto.RuntimeRemoteObjectID, Entry, error) {
	token, err := Normalize(rawToken)
	if err != nil {
		return "", Entry{}, err
	}
	entry, ok := r.reg.Lookup(token)
	if !ok {
		return "", Entry{}, &ResolutionError{Token: token, Reason: "unknown ref"}
	}

	if entry.BackendNodeID != 0 {
		if id, err := r.byBackendNode(ctx, entry.BackendNodeID); err == nil && id != "" {
			return id, entry, nil
		}
	}
	if entry.Marker > 0 {
		if id, err := r.byMarker(ctx, entry.Marker); err == nil && id != "" {
			return id, entry, nil
		}
	}
	if entry.Role != "" {
		id, err := r.byRoleName(ctx, entry)
		if err != nil {
			return "", Entry{}, err
		}
		if id != "" {
			return id, entry, nil
		}
	}
	return "", Entry{}, &ResolutionError{Token: token, Reason: "element no longer present"}
}

func (r *Resolver) byBackendNode(ctx context.Context, id proto.DOMBackendNodeID) (proto.RuntimeRemoteObjectID, error) {
	res, err := proto.DOMResolveNode{BackendNodeID: id}.Call(r.sess.Client(ctx))
	if err != nil {
		return "", err
	}
	if res.Object == nil {
		return "", nil
	}
	return res.Object.ObjectID, nil
}

func (r *Resolver) byMarker(ctx context.Context, marker int) (proto.RuntimeRemoteObjectID, error) {
	doc, err := r.document(ctx)
	if err != nil {
		return "", err
	}
	defer r.sess.ReleaseObject(ctx, doc)

	res, err := r.sess.CallFunctionOn(ctx, doc,
		`function(attr, marker) { return this.querySelector('[' + attr + '="' + marker + '"]'); }`,
		[]any{MarkerAttr, marker}, false)
	if err != nil {
		return "", err
	}
	if res.ExceptionDetails != nil || res.Result == nil {
		return "", nil
	}
	return res.Result.ObjectID, nil
}

func (r *Resolver) byRoleName(ctx context.Context, entry Entry) (proto.RuntimeRemoteObjectID, error) {
	doc, err := r.document(ctx)
	if err != nil {
		return "", err
	}
	defer r.sess.ReleaseObject(ctx, doc)

	res, err := r.sess.CallFunctionOn(ctx, doc, findByRoleJS,
		[]any{entry.Role, entry.Name, entry.Ordinal}, false)
	if err != nil {
		return "", err
	}
	if res.ExceptionDetails != nil || res.Result == nil {
		return "", nil
	}
	return res.Result.ObjectID, nil
}

func (r *Resolver) document(ctx context.Context) (proto.RuntimeRemoteObjectID, error) {
	res, err := r.sess.Eval(ctx, "document", false)
	if err != nil {
		return "", err
	}
	if res.ExceptionDetails != nil || res.Result == nil || res.Result.ObjectID == "" {
		return "", &ResolutionError{Token: "", Reason: "document not available"}
	}
	return res.Result.ObjectID, nil
}

// findByRoleJS mirrors the role/name derivation the DOM-walk snapshot uses,
// so tokens minted there resolve to the same elements here. Matching order:
// exact accessible name, then substring; a named entry with no match returns
// null. Only unnamed entries fall through to any element with the role. The
// recorded ordinal picks among equals and is clamped, not rejected.
const findByRoleJS = `function(role, name, ordinal) {
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
		number: 'spinbutton', search: 'searchbox'
	};
	const roleOf = (el) => {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit.split(/\s+/)[0];
		const tag = el.tagName.toLowerCase();
		if (tag === 'a') return el.hasAttribute('href') ? 'link' : '';
		if (tag === 'input') {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			return inputRoles[t] || 'textbox';
		}
		return implicit[tag] || '';
	};
	const nameOf = (el) => {
		const aria = el.getAttribute('aria-label');
		if (aria) return aria.trim();
		const labelled = el.getAttribute('aria-labelledby');
		if (labelled) {
			const parts = labelled.split(/\s+/)
				.map(id => { const n = document.getElementById(id); return n ? n.textContent.trim() : ''; })
				.filter(Boolean);
			if (parts.length) return parts.join(' ');
		}
		if (el.alt) return el.alt.trim();
		if (el.labels && el.labels.length) return el.labels[0].textContent.trim().replace(/\s+/g, ' ');
		if (el.title) return el.title.trim();
		if (el.placeholder) return el.placeholder.trim();
		return (el.textContent || '').trim().replace(/\s+/g, ' ').slice(0, 120);
	};
	const candidates = [];
	for (const el of document.querySelectorAll('*')) {
		if (roleOf(el) === role) candidates.push(el);
	}
	if (!candidates.length) return null;
	const pick = (list) => list[Math.max(0, Math.min(ordinal, list.length - 1))];
	if (name) {
		const exact = candidates.filter(el => nameOf(el) === name);
		if (exact.length) return pick(exact);
		const sub = candidates.filter(el => nameOf(el).includes(name));
		if (sub.length) return pick(sub);
		return null;
	}
	return pick(candidates);
}`
