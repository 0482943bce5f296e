package cmd

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/equaliser/intake-agent/internal/memory"
)

// transcriptEntry is one line of a transcript file: either a bare string,
// read as a user message, or a {role, text} object as exported by the
// transcript endpoint.
type transcriptEntry struct {
	Role memory.Role `yaml:"role"`
	Text string      `yaml:"text"`
}

func (e *transcriptEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Role = memory.RoleUser
		return node.Decode(&e.Text)
	}
	type plain transcriptEntry
	if err := node.Decode((*plain)(e)); err != nil {
		return err
	}
	switch e.Role {
	case "":
		e.Role = memory.RoleUser
	case memory.RoleUser, memory.RoleAssistant:
	default:
		return fmt.Errorf("line %d: unknown role %q", node.Line, e.Role)
	}
	return nil
}

// loadTranscript reads a YAML or JSON array of messages. Blank messages are
// dropped.
func loadTranscript(path string) ([]memory.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []transcriptEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing transcript %s: %w", path, err)
	}
	var out []memory.Message
	for _, e := range entries {
		if text := strings.TrimSpace(e.Text); text != "" {
			out = append(out, memory.Message{Role: e.Role, Text: text})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("transcript %s has no messages", path)
	}
	return out, nil
}

// userMessages returns the text of the user messages in order.
func userMessages(messages []memory.Message) []string {
	var out []string
	for _, m := range messages {
		if m.Role == memory.RoleUser {
			out = append(out, m.Text)
		}
	}
	return out
}

// hasAssistant reports whether the transcript records a full conversation.
func hasAssistant(messages []memory.Message) bool {
	for _, m := range messages {
		if m.Role == memory.RoleAssistant {
			return true
		}
	}
	return false
}
