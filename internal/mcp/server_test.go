package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/report"
	"github.com/equaliser/intake-agent/internal/respond"
	"github.com/equaliser/intake-agent/internal/vectordb"
)

// mockSessions implements Sessions for testing.
type mockSessions struct {
	snaps map[string]*intake.Snapshot
}

func newMockSessions() *mockSessions {
	return &mockSessions{snaps: map[string]*intake.Snapshot{}}
}

func (m *mockSessions) CreateSession(context.Context) (*intake.Snapshot, error) {
	snap := &intake.Snapshot{ID: "abc", State: intake.StateActive, MessageLimit: 50, Tracker: facts.InitialTracker()}
	m.snaps[snap.ID] = snap
	return snap, nil
}

func (m *mockSessions) ProcessTurn(_ context.Context, id, input string) (intake.Reply, error) {
	snap, ok := m.snaps[id]
	if !ok {
		return intake.Reply{}, intake.ErrInvalidSession
	}
	snap.MessageCount += 2
	return intake.Reply{Message: "Tell me more about " + input, Mode: respond.ModeListen}, nil
}

func (m *mockSessions) Session(_ context.Context, id string) (*intake.Snapshot, error) {
	snap, ok := m.snaps[id]
	if !ok {
		return nil, intake.ErrInvalidSession
	}
	return snap, nil
}

// mockReports implements Reports for testing.
type mockReports struct {
	err   error
	force bool
}

func (m *mockReports) Generate(_ context.Context, sessionID string, force bool) (*report.Report, error) {
	m.force = force
	if m.err != nil {
		return nil, m.err
	}
	return &report.Report{ID: "r1", SessionID: sessionID, Markdown: "# Legal Intake Report\n\n## Matter Summary\n"}, nil
}

// mockSearcher implements Searcher for testing.
type mockSearcher struct {
	docs []vectordb.Document
}

func (m *mockSearcher) Search(_ context.Context, _ string, limit int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	var results []vectordb.SearchResult
	for _, doc := range m.docs {
		if filter != nil && filter.Type != nil && doc.Metadata.Type != *filter.Type {
			continue
		}
		results = append(results, vectordb.SearchResult{Document: doc, Similarity: 0.9})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return tc.Text
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		wantName string
	}{
		{startIntakeTool, "start_intake"},
		{sendMessageTool, "send_message"},
		{getIntakeStatusTool, "get_intake_status"},
		{generateReportTool, "generate_report"},
		{searchKnowledgeTool, "search_knowledge"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(newMockSessions(), nil, nil)
	if srv == nil || srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
}

func TestIntakeConversationTools(t *testing.T) {
	srv := NewServer(newMockSessions(), nil, nil)
	ctx := context.Background()

	result, err := srv.handleStartIntake(ctx, call(nil))
	if err != nil || result.IsError {
		t.Fatalf("start_intake failed: %v %v", err, result)
	}
	var started map[string]string
	if err := json.Unmarshal([]byte(text(t, result)), &started); err != nil {
		t.Fatalf("decoding start result: %v", err)
	}
	if started["session_id"] != "abc" || started["message"] != intake.Greeting {
		t.Errorf("unexpected start result %v", started)
	}

	result, err = srv.handleSendMessage(ctx, call(map[string]any{"session_id": "abc", "message": "my lease"}))
	if err != nil || result.IsError {
		t.Fatalf("send_message failed: %v %v", err, result)
	}
	if !strings.Contains(text(t, result), "Tell me more about my lease") {
		t.Errorf("unexpected reply %s", text(t, result))
	}

	result, err = srv.handleGetIntakeStatus(ctx, call(map[string]any{"session_id": "abc"}))
	if err != nil || result.IsError {
		t.Fatalf("get_intake_status failed: %v %v", err, result)
	}
	var view intake.SessionView
	if err := json.Unmarshal([]byte(text(t, result)), &view); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if view.MessageCount != 2 || view.Complete {
		t.Errorf("unexpected status %+v", view)
	}
}

func TestSessionToolErrors(t *testing.T) {
	srv := NewServer(newMockSessions(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]any
		want    string
	}{
		{"send without session", srv.handleSendMessage, map[string]any{"message": "hi"}, "session_id"},
		{"send without message", srv.handleSendMessage, map[string]any{"session_id": "abc"}, "message"},
		{"send unknown session", srv.handleSendMessage, map[string]any{"session_id": "nope", "message": "hi"}, "Invalid session ID"},
		{"status unknown session", srv.handleGetIntakeStatus, map[string]any{"session_id": "nope"}, "Invalid session ID"},
		{"report not configured", srv.handleGenerateReport, map[string]any{"session_id": "abc"}, "not configured"},
		{"search not configured", srv.handleSearchKnowledge, map[string]any{"query": "bond"}, "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, call(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if !strings.Contains(text(t, result), tt.want) {
				t.Errorf("expected %q in %q", tt.want, text(t, result))
			}
		})
	}
}

func TestHandleGenerateReport(t *testing.T) {
	ctx := context.Background()

	t.Run("markdown", func(t *testing.T) {
		reports := &mockReports{}
		srv := NewServer(newMockSessions(), reports, nil)
		result, err := srv.handleGenerateReport(ctx, call(map[string]any{"session_id": "abc", "force": true}))
		if err != nil || result.IsError {
			t.Fatalf("generate_report failed: %v %v", err, result)
		}
		if !strings.HasPrefix(text(t, result), "# Legal Intake Report") {
			t.Errorf("unexpected report %q", text(t, result))
		}
		if !reports.force {
			t.Error("force flag not passed through")
		}
	})

	t.Run("open session", func(t *testing.T) {
		srv := NewServer(newMockSessions(), &mockReports{err: report.ErrSessionOpen}, nil)
		result, _ := srv.handleGenerateReport(ctx, call(map[string]any{"session_id": "abc"}))
		if !result.IsError || !strings.Contains(text(t, result), "force=true") {
			t.Errorf("unexpected result %v", result)
		}
	})

	t.Run("section failure", func(t *testing.T) {
		secErr := &report.SectionError{Index: 2, Heading: "Financial Overview", Err: errors.New("blank draft")}
		srv := NewServer(newMockSessions(), &mockReports{err: secErr}, nil)
		result, _ := srv.handleGenerateReport(ctx, call(map[string]any{"session_id": "abc"}))
		if !result.IsError || !strings.Contains(text(t, result), "section 3 (Financial Overview)") {
			t.Errorf("unexpected result %q", text(t, result))
		}
	})
}

func TestHandleSearchKnowledge(t *testing.T) {
	search := &mockSearcher{docs: []vectordb.Document{
		{
			ID:      "1",
			Content: "A bond must be lodged with the bond authority within 10 days.",
			Metadata: vectordb.DocumentMetadata{
				Source:  "tenancy/bonds.md",
				Title:   "Rental bonds",
				Heading: "Lodging a bond",
				Type:    vectordb.DocTypeGuide,
			},
		},
		{
			ID:      "2",
			Content: "Section 159: the landlord must not retain the bond without an order.",
			Metadata: vectordb.DocumentMetadata{
				Source: "legislation/rta.md",
				Type:   vectordb.DocTypeLegislation,
			},
		},
	}}
	srv := NewServer(newMockSessions(), nil, search)
	ctx := context.Background()

	t.Run("basic search", func(t *testing.T) {
		result, err := srv.handleSearchKnowledge(ctx, call(map[string]any{"query": "bond"}))
		if err != nil || result.IsError {
			t.Fatalf("search failed: %v %v", err, result)
		}
		out := text(t, result)
		if !strings.Contains(out, "Found 2 result(s)") || !strings.Contains(out, "Source: tenancy/bonds.md") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("type filter", func(t *testing.T) {
		result, _ := srv.handleSearchKnowledge(ctx, call(map[string]any{"query": "bond", "type_filter": "legislation"}))
		out := text(t, result)
		if !strings.Contains(out, "Found 1 result(s)") || !strings.Contains(out, "Section 159") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		result, _ := srv.handleSearchKnowledge(ctx, call(map[string]any{}))
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})

	t.Run("empty store", func(t *testing.T) {
		empty := NewServer(newMockSessions(), nil, &mockSearcher{})
		result, _ := empty.handleSearchKnowledge(ctx, call(map[string]any{"query": "anything"}))
		if result.IsError {
			t.Error("empty results should not be an error")
		}
		if !strings.Contains(text(t, result), "intake ingest") {
			t.Errorf("expected ingest hint, got %q", text(t, result))
		}
	})
}
