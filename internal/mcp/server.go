// Package mcp exposes intake sessions, report generation, and knowledge
// search as Model Context Protocol tools over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/report"
	"github.com/equaliser/intake-agent/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Sessions runs intake conversations.
type Sessions interface {
	CreateSession(ctx context.Context) (*intake.Snapshot, error)
	ProcessTurn(ctx context.Context, id, input string) (intake.Reply, error)
	Session(ctx context.Context, id string) (*intake.Snapshot, error)
}

// Reports generates and stores the report for a session.
type Reports interface {
	Generate(ctx context.Context, sessionID string, force bool) (*report.Report, error)
}

// Searcher queries the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error)
}

// Server wraps an MCP server that exposes the intake tools.
type Server struct {
	sessions Sessions
	reports  Reports
	search   Searcher
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server. reports and search may be nil, in
// which case their tools report that they are unavailable.
func NewServer(sessions Sessions, reports Reports, search Searcher) *Server {
	s := &Server{
		sessions: sessions,
		reports:  reports,
		search:   search,
	}

	s.mcp = server.NewMCPServer(
		"intake",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(startIntakeTool, s.handleStartIntake)
	s.mcp.AddTool(sendMessageTool, s.handleSendMessage)
	s.mcp.AddTool(getIntakeStatusTool, s.handleGetIntakeStatus)
	s.mcp.AddTool(generateReportTool, s.handleGenerateReport)
	s.mcp.AddTool(searchKnowledgeTool, s.handleSearchKnowledge)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
