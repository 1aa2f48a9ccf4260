// CLAUDE:SUMMARY MCP tool registration for dompilot — 10 browser-automation tools over the Pilot facade.
package dompilot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/dompilot/idgen"
	"github.com/hazyhaar/dompilot/kit"
)

func decodeCookieParams(raw json.RawMessage) ([]*proto.NetworkCookieParam, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Field: "cookies", Reason: "required for set"}
	}
	var params []*proto.NetworkCookieParam
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &ValidationError{Field: "cookies", Reason: err.Error()}
	}
	if len(params) == 0 {
		return nil, &ValidationError{Field: "cookies", Reason: "empty list"}
	}
	return params, nil
}

// RegisterMCP registers the pilot tools on an MCP server.
func (p *Pilot) RegisterMCP(srv *mcp.Server) {
	p.registerStatusTool(srv)
	p.registerNavigateTool(srv)
	p.registerHistoryTool(srv)
	p.registerSnapshotTool(srv)
	p.registerActTool(srv)
	p.registerScreenshotTool(srv)
	p.registerConsoleTool(srv)
	p.registerCookiesTool(srv)
	p.registerStorageTool(srv)
	p.registerTrailTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var newRequestID = idgen.Prefixed("br-", idgen.UUIDv7())

func enrich(ctx context.Context) context.Context {
	ctx = kit.WithTransport(ctx, "mcp")
	return kit.WithRequestID(ctx, newRequestID())
}

// decodeInto builds the standard decode func: unmarshal arguments into a
// fresh *T and tag the context.
func decodeInto[T any]() func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r := new(T)
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: r, EnrichCtx: enrich}, nil
	}
}

// --- status ---

func (p *Pilot) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_status",
		Description: "Report browser availability, the attached page URL/title, and any open native dialog.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return p.Status(ctx), nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[struct{}]())
}

// --- navigate ---

type navigateRequest struct {
	URL string `json:"url"`
}

func (p *Pilot) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_navigate",
		Description: "Navigate the page to a URL. Waits for load but resolves optimistically on timeout.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Absolute URL to open"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*navigateRequest)
		if r.URL == "" {
			return nil, &ValidationError{Field: "url", Reason: "required"}
		}
		return p.Navigate(ctx, r.URL)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[navigateRequest]())
}

// --- history ---

type historyRequest struct {
	Op          string `json:"op"`
	IgnoreCache bool   `json:"ignore_cache,omitempty"`
}

func (p *Pilot) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_history",
		Description: "Move through session history (back/forward) or reload the current page.",
		InputSchema: inputSchema(map[string]any{
			"op":           map[string]any{"type": "string", "enum": []any{"back", "forward", "reload"}},
			"ignore_cache": map[string]any{"type": "boolean", "description": "reload only: bypass the cache"},
		}, []string{"op"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyRequest)
		switch r.Op {
		case "back":
			return p.Back(ctx)
		case "forward":
			return p.Forward(ctx)
		case "reload":
			if err := p.Reload(ctx, r.IgnoreCache); err != nil {
				return nil, err
			}
			return map[string]bool{"reloaded": true}, nil
		default:
			return nil, &ValidationError{Field: "op", Reason: fmt.Sprintf("unknown op %q", r.Op)}
		}
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[historyRequest]())
}

// --- snapshot ---

func (p *Pilot) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_snapshot",
		Description: "Snapshot the page as a ref-annotated outline. Refs (e1, ax3) feed dompilot_act and are replaced by every new snapshot.",
		InputSchema: inputSchema(map[string]any{
			"format":           map[string]any{"type": "string", "enum": []any{"role", "aria"}, "description": "Rendering (default role)"},
			"interactive_only": map[string]any{"type": "boolean", "description": "Only actionable elements"},
			"compact":          map[string]any{"type": "boolean", "description": "Drop lines without name/value/action"},
			"max_depth":        map[string]any{"type": "integer", "description": "Outline depth cap"},
			"limit":            map[string]any{"type": "integer", "description": "aria format: node cap (default 500)"},
			"if_changed":       map[string]any{"type": "boolean", "description": "Short response when the page is unchanged"},
			"include_text":     map[string]any{"type": "boolean", "description": "Append visible text and leading tables"},
			"text_budget":      map[string]any{"type": "integer", "description": "Text cap in characters (default 8000)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return p.Snapshot(ctx, *req.(*SnapshotOptions))
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[SnapshotOptions]())
}

// --- act ---

func (p *Pilot) registerActTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_act",
		Description: "Execute one action: click, type, fill, hover, drag, select, press, evaluate, wait, screenshot, navigate, upload, resize, dialog_accept, dialog_dismiss.",
		InputSchema: inputSchema(map[string]any{
			"kind":        map[string]any{"type": "string", "description": "Action verb"},
			"ref":         map[string]any{"type": "string", "description": "Snapshot ref token (e.g. e12)"},
			"text":        map[string]any{"type": "string", "description": "type: text to type"},
			"value":       map[string]any{"type": "string", "description": "fill: value to set"},
			"submit":      map[string]any{"type": "boolean", "description": "type: press Enter after"},
			"slowly":      map[string]any{"type": "boolean", "description": "type: per-keystroke events instead of a direct set"},
			"double":      map[string]any{"type": "boolean", "description": "click: double click"},
			"target_ref":  map[string]any{"type": "string", "description": "drag: destination ref"},
			"values":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "select: option values or labels"},
			"key":         map[string]any{"type": "string", "description": "press: logical key, modifiers with + (ctrl+a)"},
			"expression":  map[string]any{"type": "string", "description": "evaluate: JavaScript source"},
			"wait":        map[string]any{"type": "object", "description": "wait: condition (delay_ms, text_present, text_absent, selector, ready_state, url_contains, expression)"},
			"url":         map[string]any{"type": "string", "description": "navigate: URL"},
			"files":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "upload: file paths"},
			"width":       map[string]any{"type": "integer", "description": "resize: viewport width"},
			"height":      map[string]any{"type": "integer", "description": "resize: viewport height"},
			"prompt_text": map[string]any{"type": "string", "description": "dialog_accept: prompt input"},
			"timeout_ms":  map[string]any{"type": "integer", "description": "Budget override"},
			"fields": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"ref":   map[string]any{"type": "string"},
						"value": map[string]any{"type": "string"},
					},
					"required": []string{"ref"},
				},
				"description": "fill: batched {ref, value} writes",
			},
		}, []string{"kind"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return p.Act(ctx, *req.(*ActionRequest))
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[ActionRequest]())
}

// --- screenshot ---

func (p *Pilot) registerScreenshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_screenshot",
		Description: "Capture the page as an image, returned base64-encoded.",
		InputSchema: inputSchema(map[string]any{
			"full_page": map[string]any{"type": "boolean", "description": "Capture the whole document"},
			"format":    map[string]any{"type": "string", "enum": []any{"png", "jpeg"}},
			"quality":   map[string]any{"type": "integer", "description": "jpeg quality 0-100"},
		}, nil),
	}
	type screenshotRequest struct {
		FullPage bool   `json:"full_page,omitempty"`
		Format   string `json:"format,omitempty"`
		Quality  int    `json:"quality,omitempty"`
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*screenshotRequest)
		data, err := p.Screenshot(ctx, ScreenshotOptions{FullPage: r.FullPage, Format: r.Format, Quality: r.Quality})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"bytes":  len(data),
			"base64": base64.StdEncoding.EncodeToString(data),
		}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[screenshotRequest]())
}

// --- console ---

type consoleRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (p *Pilot) registerConsoleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_console",
		Description: "Return recent page console output and uncaught exceptions.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max entries (default all retained)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*consoleRequest)
		return map[string]any{"entries": p.ConsoleLogs(r.Limit)}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[consoleRequest]())
}

// --- cookies ---

type cookiesRequest struct {
	Op      string          `json:"op"`
	URLs    []string        `json:"urls,omitempty"`
	Cookies json.RawMessage `json:"cookies,omitempty"`
	Name    string          `json:"name,omitempty"`
	URL     string          `json:"url,omitempty"`
	Domain  string          `json:"domain,omitempty"`
	Path    string          `json:"path,omitempty"`
}

func (p *Pilot) registerCookiesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_cookies",
		Description: "Cookie CRUD: list, set, delete, clear.",
		InputSchema: inputSchema(map[string]any{
			"op":      map[string]any{"type": "string", "enum": []any{"list", "set", "delete", "clear"}},
			"urls":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "list: filter by URLs"},
			"cookies": map[string]any{"type": "array", "description": "set: cookie objects (name, value, domain/url, path, ...)"},
			"name":    map[string]any{"type": "string", "description": "delete: cookie name"},
			"url":     map[string]any{"type": "string", "description": "delete: URL scope"},
			"domain":  map[string]any{"type": "string", "description": "delete: domain scope"},
			"path":    map[string]any{"type": "string", "description": "delete: path scope"},
		}, []string{"op"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*cookiesRequest)
		switch r.Op {
		case "list":
			cookies, err := p.Cookies(ctx, r.URLs)
			if err != nil {
				return nil, err
			}
			return map[string]any{"cookies": cookies, "count": len(cookies)}, nil
		case "set":
			params, err := decodeCookieParams(r.Cookies)
			if err != nil {
				return nil, err
			}
			if err := p.SetCookies(ctx, params); err != nil {
				return nil, err
			}
			return map[string]int{"set": len(params)}, nil
		case "delete":
			if r.Name == "" {
				return nil, &ValidationError{Field: "name", Reason: "required for delete"}
			}
			if err := p.DeleteCookies(ctx, r.Name, r.URL, r.Domain, r.Path); err != nil {
				return nil, err
			}
			return map[string]bool{"deleted": true}, nil
		case "clear":
			if err := p.ClearCookies(ctx); err != nil {
				return nil, err
			}
			return map[string]bool{"cleared": true}, nil
		default:
			return nil, &ValidationError{Field: "op", Reason: fmt.Sprintf("unknown op %q", r.Op)}
		}
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[cookiesRequest]())
}

// --- storage ---

type storageRequest struct {
	Op    string `json:"op"`
	Type  string `json:"type"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

func (p *Pilot) registerStorageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_storage",
		Description: "DOM storage CRUD on localStorage or sessionStorage.",
		InputSchema: inputSchema(map[string]any{
			"op":    map[string]any{"type": "string", "enum": []any{"get", "set", "delete", "clear"}},
			"type":  map[string]any{"type": "string", "enum": []any{"localStorage", "sessionStorage"}},
			"key":   map[string]any{"type": "string"},
			"value": map[string]any{"type": "string"},
		}, []string{"op", "type"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*storageRequest)
		typ := StorageType(r.Type)
		switch r.Op {
		case "get":
			return p.Storage(ctx, typ)
		case "set":
			if r.Key == "" {
				return nil, &ValidationError{Field: "key", Reason: "required for set"}
			}
			if err := p.StorageSet(ctx, typ, r.Key, r.Value); err != nil {
				return nil, err
			}
			return map[string]bool{"set": true}, nil
		case "delete":
			if r.Key == "" {
				return nil, &ValidationError{Field: "key", Reason: "required for delete"}
			}
			if err := p.StorageDelete(ctx, typ, r.Key); err != nil {
				return nil, err
			}
			return map[string]bool{"deleted": true}, nil
		case "clear":
			if err := p.StorageClear(ctx, typ); err != nil {
				return nil, err
			}
			return map[string]bool{"cleared": true}, nil
		default:
			return nil, &ValidationError{Field: "op", Reason: fmt.Sprintf("unknown op %q", r.Op)}
		}
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[storageRequest]())
}

// --- trail ---

type trailRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (p *Pilot) registerTrailTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "dompilot_trail",
		Description: "Return recent operation-trail records (navigations, snapshots, actions).",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max records (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*trailRequest)
		recs, err := p.Trail(ctx, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"records": recs, "count": len(recs)}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[trailRequest]())
}
