package recorder

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/locator/kit"
)

// RegisterMCP registers the locator tools on an MCP server.
func (r *Recorder) RegisterMCP(srv *mcp.Server) {
	eps := r.endpoints()
	registerResolveTool(srv, eps)
	registerRecordTool(srv, eps)
	registerBucketsTool(srv, eps)
	registerApplyTool(srv, eps)
	registerSuggestTool(srv, eps)
	registerCodeTool(srv, eps)
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

// pageProperties describe the Page fields.
func pageProperties() map[string]any {
	return map[string]any{
		"html":   map[string]any{"type": "string", "description": "Page HTML. Takes precedence over url."},
		"url":    map[string]any{"type": "string", "description": "Live page URL, captured in a headless browser"},
		"target": map[string]any{"type": "string", "description": "Selector of the element to locate: CSS, xpath=<expr> or text=<text>"},
		"scope":  map[string]any{"type": "string", "description": "Selector of an ancestor to scope the locators to"},
	}
}

func registerResolveTool(srv *mcp.Server, eps *endpoints) {
	tool := &mcp.Tool{
		Name: "locator_resolve",
		Description: "Compute ranked locator candidates for an element without recording it. " +
			"Returns the candidates, the element position and the unique/repeat buckets.",
		InputSchema: inputSchema(pageProperties(), []string{"target"}),
	}
	kit.RegisterMCPTool(srv, tool, eps.resolve, kit.DecodeJSON[Page]())
}

func registerRecordTool(srv *mcp.Server, eps *endpoints) {
	props := pageProperties()
	props["action"] = map[string]any{"type": "string", "description": "Action performed: click, dblclick, fill, select, hover, check, uncheck, press"}
	props["value"] = map[string]any{"type": "string", "description": "Text filled, option selected or key pressed"}
	tool := &mcp.Tool{
		Name:        "locator_record",
		Description: "Record an action on an element. Stores the event with its locator candidates and returns it.",
		InputSchema: inputSchema(props, []string{"target"}),
	}
	kit.RegisterMCPTool(srv, tool, eps.record, kit.DecodeJSON[RecordPageRequest]())
}

func registerBucketsTool(srv *mcp.Server, eps *endpoints) {
	tool := &mcp.Tool{
		Name:        "locator_buckets",
		Description: "Classify a recorded event's base and AI candidates into unique and repeat buckets.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Event ID"},
		}, []string{"id"}),
	}
	kit.RegisterMCPTool(srv, tool, eps.buckets, kit.DecodeJSON[idRequest]())
}

func registerApplyTool(srv *mcp.Server, eps *endpoints) {
	tool := &mcp.Tool{
		Name:        "locator_apply",
		Description: "Make a bucket entry the primary selector of a recorded event.",
		InputSchema: inputSchema(map[string]any{
			"id":     map[string]any{"type": "string", "description": "Event ID"},
			"bucket": map[string]any{"type": "string", "enum": []any{"unique", "repeat"}},
			"source": map[string]any{"type": "string", "enum": []any{"base", "ai"}, "description": "Candidate source (default base)"},
			"index":  map[string]any{"type": "integer", "description": "Position in the bucket's entries for that source"},
		}, []string{"id", "bucket", "index"}),
	}
	kit.RegisterMCPTool(srv, tool, eps.apply, kit.DecodeJSON[applyRequest]())
}

func registerSuggestTool(srv *mcp.Server, eps *endpoints) {
	tool := &mcp.Tool{
		Name: "locator_suggest",
		Description: "Attach AI-suggested locator candidates to a recorded event, replacing earlier suggestions. " +
			"Pass html or url to measure them.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Event ID"},
			"candidates": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"selector": map[string]any{"type": "string"},
						"kind":     map[string]any{"type": "string", "description": "Inferred from the selector when omitted"},
						"score":    map[string]any{"type": "integer"},
						"reason":   map[string]any{"type": "string"},
					},
					"required": []any{"selector"},
				},
			},
			"html": map[string]any{"type": "string", "description": "Page HTML to measure the candidates against"},
			"url":  map[string]any{"type": "string", "description": "Live page to measure the candidates against"},
		}, []string{"id", "candidates"}),
	}
	kit.RegisterMCPTool(srv, tool, eps.suggest, kit.DecodeJSON[suggestRequest]())
}

func registerCodeTool(srv *mcp.Server, eps *endpoints) {
	tool := &mcp.Tool{
		Name:        "locator_code",
		Description: "Generate the test statement for a recorded event's primary selector and action.",
		InputSchema: inputSchema(map[string]any{
			"id":        map[string]any{"type": "string", "description": "Event ID"},
			"framework": map[string]any{"type": "string", "enum": []any{"playwright", "cypress", "selenium"}, "description": "Default playwright"},
		}, []string{"id"}),
	}
	kit.RegisterMCPTool(srv, tool, eps.code, kit.DecodeJSON[codeRequest]())
}
