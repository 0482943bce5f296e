package llm

import "encoding/json"

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool

	// Operation names the caller-side step (intent, facts, section, ...).
	// Providers ignore it; it is used for logging and test routing.
	Operation string

	// SchemaName and Schema request schema-constrained output from providers
	// that support it. Schema implies JSONMode.
	SchemaName string
	Schema     json.RawMessage
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}

// WantsJSON reports whether the request expects a JSON object back.
func (r CompletionRequest) WantsJSON() bool {
	return r.JSONMode || len(r.Schema) > 0
}

// SplitSystem separates system messages from the conversational turns.
// Providers whose APIs take the system prompt out of band use it.
func SplitSystem(messages []Message) (system string, rest []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
