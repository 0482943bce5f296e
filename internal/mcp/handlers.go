package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/report"
	"github.com/equaliser/intake-agent/internal/vectordb"
)

// handleStartIntake opens a new session.
func (s *Server) handleStartIntake(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.sessions.CreateSession(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start intake: %v", err)), nil
	}
	return jsonResult(map[string]string{
		"session_id": snap.ID,
		"message":    intake.Greeting,
	})
}

// handleSendMessage runs one conversation turn.
func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}

	reply, err := s.sessions.ProcessTurn(ctx, id, message)
	if err != nil {
		return sessionError(err), nil
	}
	return jsonResult(map[string]any{
		"ai_message": reply.Message,
		"complete":   reply.Complete,
		"mode":       reply.Mode,
	})
}

// handleGetIntakeStatus reports the session's facts and completeness.
func (s *Server) handleGetIntakeStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	snap, err := s.sessions.Session(ctx, id)
	if err != nil {
		return sessionError(err), nil
	}
	return jsonResult(intake.View(snap))
}

// handleGenerateReport builds the report and returns its markdown.
func (s *Server) handleGenerateReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.reports == nil {
		return mcp.NewToolResultError("report generation is not configured"), nil
	}
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	rep, err := s.reports.Generate(ctx, id, request.GetBool("force", false))
	var secErr *report.SectionError
	switch {
	case err == nil:
		return mcp.NewToolResultText(rep.Markdown), nil
	case errors.Is(err, report.ErrSessionOpen):
		return mcp.NewToolResultError("The intake is still in progress. Continue the conversation, or pass force=true to draft from what has been gathered so far."), nil
	case errors.As(err, &secErr):
		return mcp.NewToolResultError(fmt.Sprintf("report generation stopped at section %d (%s): %v", secErr.Index+1, secErr.Heading, secErr.Err)), nil
	default:
		return sessionError(err), nil
	}
}

// handleSearchKnowledge performs semantic search over the knowledge base.
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.search == nil {
		return mcp.NewToolResultError("knowledge base is not configured"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	var filter *vectordb.SearchFilter
	if typeStr := request.GetString("type_filter", ""); typeStr != "" {
		docType := vectordb.ParseDocumentType(typeStr)
		filter = &vectordb.SearchFilter{Type: &docType}
	}

	results, err := s.search.Search(ctx, query, limit, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The knowledge base may not be indexed yet. Run `intake ingest` to index it."), nil
	}
	return mcp.NewToolResultText(formatSearchResults(results)), nil
}

func sessionError(err error) *mcp.CallToolResult {
	if errors.Is(err, intake.ErrInvalidSession) {
		return mcp.NewToolResultError("Invalid session ID")
	}
	return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// formatSearchResults converts search results into a text format suited to
// agent consumption.
func formatSearchResults(results []vectordb.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n", len(results)))

	for i, r := range results {
		meta := r.Document.Metadata
		sb.WriteString(fmt.Sprintf("\n--- Result %d ---\n", i+1))
		if meta.Source != "" {
			sb.WriteString(fmt.Sprintf("Source: %s\n", meta.Source))
		}
		if meta.Title != "" {
			sb.WriteString(fmt.Sprintf("Title: %s\n", meta.Title))
		}
		if meta.Heading != "" {
			sb.WriteString(fmt.Sprintf("Section: %s\n", meta.Heading))
		}
		if meta.Type != "" {
			sb.WriteString(fmt.Sprintf("Type: %s\n", meta.Type))
		}
		sb.WriteString(fmt.Sprintf("Similarity: %.1f%%\n", r.Similarity*100))

		sb.WriteString("\n")
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}
