package mcp

import "github.com/mark3labs/mcp-go/mcp"

// startIntakeTool defines the start_intake MCP tool.
var startIntakeTool = mcp.NewTool("start_intake",
	mcp.WithDescription("Start a new legal intake conversation. Returns the session ID and the opening message to show the client."),
)

// sendMessageTool defines the send_message MCP tool.
var sendMessageTool = mcp.NewTool("send_message",
	mcp.WithDescription("Send the client's next message in an intake conversation and get the agent's reply."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID returned by start_intake"),
	),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("The client's message"),
	),
)

// getIntakeStatusTool defines the get_intake_status MCP tool.
var getIntakeStatusTool = mcp.NewTool("get_intake_status",
	mcp.WithDescription("Get the state of an intake session: the facts gathered so far, which critical details are missing, and whether the intake is complete."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID returned by start_intake"),
	),
)

// generateReportTool defines the generate_report MCP tool.
var generateReportTool = mcp.NewTool("generate_report",
	mcp.WithDescription("Generate the multi-section legal intake report for a session and return it as markdown."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID returned by start_intake"),
	),
	mcp.WithBoolean("force",
		mcp.Description("Generate even if the intake is not yet complete (default false)"),
	),
)

// searchKnowledgeTool defines the search_knowledge MCP tool.
var searchKnowledgeTool = mcp.NewTool("search_knowledge",
	mcp.WithDescription("Search the legal knowledge base semantically. Returns matching passages with their sources."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
	mcp.WithString("type_filter",
		mcp.Description("Filter results by source type"),
		mcp.Enum("guide", "legislation", "faq", "service"),
	),
)
