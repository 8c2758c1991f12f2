package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/crispai/crisp/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *session.Store
}

// NewMCPServer creates an MCP server exposing the interviewer dashboard
// reads as tools. The MCP surface is read-only; interview commands flow
// through the REST API.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"crisp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("crisp: AI-driven technical interview engine. Tools expose candidate and session state for review."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_candidates",
			mcp.WithDescription("List all candidates with status, final score, and summary, most recently active first."),
		),
		mcpListCandidates(deps),
	)

	s.AddTool(
		mcp.NewTool("session_status",
			mcp.WithDescription("Show an interview session: status, question rounds, timers, and per-question evaluations."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpSessionStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("get_transcript",
			mcp.WithDescription("Return the full chat transcript of a session in order."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpGetTranscript(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"crisp://candidates",
			"Candidates",
			mcp.WithResourceDescription("All candidates as JSON, most recently updated first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCandidates(deps),
	)

	return s
}

func mcpListCandidates(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		candidates := deps.Store.Candidates()
		views := make([]candidateJSON, 0, len(candidates))
		for _, c := range candidates {
			views = append(views, candidateView(c))
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal candidates: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSessionStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		sess, err := deps.Store.Session(id)
		if err != nil {
			return mcpError(fmt.Sprintf("session not found: %v", err)), nil
		}
		b, err := json.Marshal(sessionView(deps.Store, sess))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetTranscript(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		if _, err := deps.Store.Session(id); err != nil {
			return mcpError(fmt.Sprintf("session not found: %v", err)), nil
		}
		b, err := json.Marshal(transcriptView(deps.Store.Thread(id)))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal transcript: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCandidates(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		candidates := deps.Store.Candidates()
		views := make([]candidateJSON, 0, len(candidates))
		for _, c := range candidates {
			views = append(views, candidateView(c))
		}
		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal candidates: %w", err)
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
