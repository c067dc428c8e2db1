package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quillkb/quill/internal/backend"
	"github.com/quillkb/quill/internal/snippets"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Client   *backend.Client
	Snippets *snippets.Store // optional; nil disables presets and history
	Locale   string          // default locale for rewrite requests
}

// NewMCPServer creates an MCP server exposing the rewrite and chat
// operations as tools, routed through the resilient client so agents get
// the same breaker/retry behavior the keyboard does.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"quill",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("quill — AI text rewriting and chat for writing assistance."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("rewrite",
			mcp.WithDescription("Rewrite text with adjustable tone and length."),
			mcp.WithString("text", mcp.Description("The text to rewrite"), mcp.Required()),
			mcp.WithNumber("tone", mcp.Description("Tone from 0 (casual) to 1 (formal); default 0.5")),
			mcp.WithNumber("length", mcp.Description("Length from 0 (detailed) to 1 (brief); default 0.5")),
			mcp.WithString("preset", mcp.Description("Preset ID overriding tone and length")),
		),
		mcpRewrite(deps),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask the writing assistant a free-form question."),
			mcp.WithString("query", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"quill://presets",
			"Rewrite Presets",
			mcp.WithResourceDescription("Saved rewrite presets as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePresets(deps),
	)

	return s
}

func mcpRewrite(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		params := backend.RewriteParams{
			Text:   text,
			Tone:   req.GetFloat("tone", 0.5),
			Length: req.GetFloat("length", 0.5),
			Locale: deps.Locale,
		}

		if presetID := req.GetString("preset", ""); presetID != "" {
			if deps.Snippets == nil {
				return mcpError("presets not available"), nil
			}
			p, err := deps.Snippets.Preset(presetID)
			if errors.Is(err, snippets.ErrNotFound) {
				return mcpError(fmt.Sprintf("preset %q not found", presetID)), nil
			}
			if err != nil {
				return mcpError(fmt.Sprintf("loading preset: %v", err)), nil
			}
			params.PresetID = p.ID
			params.Tone = p.Tone
			params.Length = p.Length
		}

		result, err := deps.Client.Rewrite(ctx, params)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		if deps.Snippets != nil {
			if _, err := deps.Snippets.RecordEntry(snippets.Entry{Operation: "rewrite", Input: text, Output: result}); err != nil {
				// History is best effort; the rewrite already succeeded.
				_ = err
			}
		}

		return mcpText(result), nil
	}
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		result, err := deps.Client.Chat(ctx, backend.ChatParams{Query: query})
		if err != nil {
			return mcpError(err.Error()), nil
		}

		if deps.Snippets != nil {
			if _, err := deps.Snippets.RecordEntry(snippets.Entry{Operation: "chat", Input: query, Output: result}); err != nil {
				_ = err
			}
		}

		return mcpText(result), nil
	}
}

func mcpResourcePresets(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Snippets == nil {
			return nil, fmt.Errorf("presets not available")
		}

		presets, err := deps.Snippets.ListPresets()
		if err != nil {
			return nil, fmt.Errorf("listing presets: %w", err)
		}

		type presetView struct {
			ID        string  `json:"id"`
			Name      string  `json:"name"`
			Tone      float64 `json:"tone"`
			Length    float64 `json:"length"`
			CreatedAt string  `json:"created_at"`
		}

		views := make([]presetView, len(presets))
		for i, p := range presets {
			views[i] = presetView{
				ID:        p.ID,
				Name:      p.Name,
				Tone:      p.Tone,
				Length:    p.Length,
				CreatedAt: p.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("marshaling presets: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
