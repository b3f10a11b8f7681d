package pilot

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domheal/heal"
	"github.com/hazyhaar/domheal/journal"
	"github.com/hazyhaar/domheal/kit"
)

// RegisterMCP registers the pilot tools on an MCP server.
func (p *Pilot) RegisterMCP(srv *mcp.Server) {
	p.registerFindTool(srv)
	p.registerFindAllTool(srv)
	p.registerCountTool(srv)
	p.registerTextTool(srv)
	p.registerAttributeTool(srv)
	p.registerClickTool(srv)
	p.registerInputTool(srv)
	p.registerHTMLTool(srv)
	p.registerMarkdownTool(srv)
	p.registerWaitTextTool(srv)
	p.registerNavigateTool(srv)
	p.registerReleaseTool(srv)
	p.registerHandlesTool(srv)
	p.registerEventsTool(srv)
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

var (
	idProp       = map[string]any{"type": "string", "description": "Handle id returned by heal_find or heal_find_all"}
	parentProp   = map[string]any{"type": "string", "description": "Optional: handle id to search under (default: the page)"}
	selectorProp = map[string]any{"type": "string", "description": `CSS selector; "xpath:" or "id:" prefix for other strategies; ".." for the parent`}
)

func (p *Pilot) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(
		kit.Logging(p.cfg.Logger, tool.Name),
		kit.Timeout(p.cfg.CallTimeout),
	)
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

// --- find ---

type findRequest struct {
	Selector string `json:"selector"`
	Parent   string `json:"parent,omitempty"`
}

func (p *Pilot) registerFindTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_find",
		Description: "Find one element and register a self-healing handle for it. The handle keeps working after the page rebuilds the element.",
		InputSchema: inputSchema(map[string]any{
			"selector": selectorProp,
			"parent":   parentProp,
		}, []string{"selector"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*findRequest)
		return p.Find(ctx, r.Parent, r.Selector)
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[findRequest]())
}

// --- find_all ---

func (p *Pilot) registerFindAllTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_find_all",
		Description: "Find every matching element and register a handle for each. Handles re-bind by position when the list is rebuilt.",
		InputSchema: inputSchema(map[string]any{
			"selector": selectorProp,
			"parent":   parentProp,
		}, []string{"selector"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*findRequest)
		hs, total, err := p.FindAll(ctx, r.Parent, r.Selector)
		if err != nil {
			return nil, err
		}
		return map[string]any{"handles": hs, "count": total, "truncated": len(hs) < total}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[findRequest]())
}

// --- count ---

func (p *Pilot) registerCountTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_count",
		Description: "Count elements currently matching a selector, without registering handles.",
		InputSchema: inputSchema(map[string]any{
			"selector": selectorProp,
			"parent":   parentProp,
		}, []string{"selector"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*findRequest)
		n, err := p.Count(ctx, r.Parent, r.Selector)
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": n}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[findRequest]())
}

// --- text ---

type idRequest struct {
	ID string `json:"id"`
}

func (p *Pilot) registerTextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_text",
		Description: "Read the visible text of a handle.",
		InputSchema: inputSchema(map[string]any{"id": idProp}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		txt, err := p.Text(ctx, req.(*idRequest).ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"text": txt}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[idRequest]())
}

// --- attribute ---

type attributeRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Pilot) registerAttributeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_attribute",
		Description: "Read an attribute of a handle.",
		InputSchema: inputSchema(map[string]any{
			"id":   idProp,
			"name": map[string]any{"type": "string", "description": "Attribute name"},
		}, []string{"id", "name"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*attributeRequest)
		v, ok, err := p.Attribute(ctx, r.ID, r.Name)
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": v, "present": ok}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[attributeRequest]())
}

// --- click ---

func (p *Pilot) registerClickTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_click",
		Description: "Click a handle.",
		InputSchema: inputSchema(map[string]any{"id": idProp}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		if err := p.Click(ctx, req.(*idRequest).ID); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[idRequest]())
}

// --- input ---

type inputRequest struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Clear bool   `json:"clear,omitempty"`
}

func (p *Pilot) registerInputTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_input",
		Description: "Type text into a handle, optionally clearing it first.",
		InputSchema: inputSchema(map[string]any{
			"id":    idProp,
			"text":  map[string]any{"type": "string", "description": "Text to type"},
			"clear": map[string]any{"type": "boolean", "description": "Clear the field first"},
		}, []string{"id", "text"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*inputRequest)
		if err := p.Input(ctx, r.ID, r.Text, r.Clear); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[inputRequest]())
}

// --- html / markdown ---

type docRequest struct {
	ID string `json:"id,omitempty"`
}

func (p *Pilot) registerHTMLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_html",
		Description: "Sanitised outer HTML of a handle, or of the page when id is omitted.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Optional handle id (default: whole page)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		s, err := p.HTML(ctx, req.(*docRequest).ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"html": s}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[docRequest]())
}

func (p *Pilot) registerMarkdownTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_markdown",
		Description: "Markdown rendering of a handle, or of the page when id is omitted.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Optional handle id (default: whole page)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		s, err := p.Markdown(ctx, req.(*docRequest).ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"markdown": s}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[docRequest]())
}

// --- wait_text ---

type waitTextRequest struct {
	ID        string `json:"id"`
	Contains  string `json:"contains"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

func (p *Pilot) registerWaitTextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_wait_text",
		Description: "Poll a handle until its text contains a string.",
		InputSchema: inputSchema(map[string]any{
			"id":         idProp,
			"contains":   map[string]any{"type": "string", "description": "Substring to wait for"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Max wait in milliseconds (default 5000)"},
		}, []string{"id", "contains"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*waitTextRequest)
		txt, err := p.WaitForText(ctx, r.ID, r.Contains, time.Duration(r.TimeoutMS)*time.Millisecond)
		if err != nil {
			return nil, err
		}
		return map[string]string{"text": txt}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[waitTextRequest]())
}

// --- navigate ---

type navigateRequest struct {
	URL string `json:"url"`
}

func (p *Pilot) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_navigate",
		Description: "Load a URL. Existing handles re-resolve on the new page only if the origin policy accepts it.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to load"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		if err := p.Navigate(ctx, req.(*navigateRequest).URL); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[navigateRequest]())
}

// --- release / handles ---

func (p *Pilot) registerReleaseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_release",
		Description: "Forget a handle.",
		InputSchema: inputSchema(map[string]any{"id": idProp}, []string{"id"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		return map[string]bool{"released": p.Release(req.(*idRequest).ID)}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[idRequest]())
}

func (p *Pilot) registerHandlesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_handles",
		Description: "List registered handles, oldest first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		return map[string]any{"handles": p.Handles()}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[struct{}]())
}

// --- events ---

type eventsRequest struct {
	Kind    string `json:"kind,omitempty"`
	Session string `json:"session,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (p *Pilot) registerEventsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "heal_events",
		Description: "Recent recovery events from the journal, newest first.",
		InputSchema: inputSchema(map[string]any{
			"kind":    map[string]any{"type": "string", "enum": []any{"resolving", "stale", "origin_rejected"}, "description": "Filter by event kind"},
			"session": map[string]any{"type": "string", "description": "Filter by journal session"},
			"limit":   map[string]any{"type": "integer", "description": "Max events (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*eventsRequest)
		entries, err := p.Events(ctx, journal.Filter{Kind: heal.EventKind(r.Kind), Session: r.Session}, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"events": entries}, nil
	}
	p.addTool(srv, tool, endpoint, kit.DecodeJSON[eventsRequest]())
}
