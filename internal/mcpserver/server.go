package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Trustline tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("trustline", "1.0.0")
	client := NewTrustlineClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolReportEvent, h.HandleReportEvent)
	s.AddTool(ToolGetTrustScore, h.HandleGetTrustScore)
	s.AddTool(ToolPreflightAction, h.HandlePreflightAction)
	s.AddTool(ToolListDecisions, h.HandleListDecisions)
	s.AddTool(ToolGetPolicy, h.HandleGetPolicy)

	return s
}
