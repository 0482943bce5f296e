// Package extract turns free-text conversation into typed records by calling
// the completion oracle with a JSON schema and validating what comes back.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/llm"
)

// SchemaValidationError reports oracle output that could not be parsed into
// the target schema or failed validation.
type SchemaValidationError struct {
	Operation string
	Raw       string
	Err       error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("extract: %s: invalid structured output: %v", e.Operation, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// IsSchemaValidation reports whether err is or wraps a SchemaValidationError.
func IsSchemaValidation(err error) bool {
	var sve *SchemaValidationError
	return errors.As(err, &sve)
}

// Caller holds the oracle settings shared by structured and free-text calls.
type Caller struct {
	Provider    llm.Provider
	Model       string
	Temperature float64
	MaxTokens   int
	// Attempts is the number of tries for output that fails validation.
	// Values below 1 mean a single try.
	Attempts int
	Logger   *zap.Logger
}

func (c *Caller) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Text performs a free-text completion.
func (c *Caller) Text(ctx context.Context, op string, messages []llm.Message) (string, error) {
	resp, err := c.Provider.Complete(ctx, llm.CompletionRequest{
		Model:       c.Model,
		Messages:    messages,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Operation:   op,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Structured asks the oracle for a T, sending T's JSON schema both as a
// response format and in the system prompt. Output that does not decode or
// fails validate is retried with the error fed back, up to c.Attempts times,
// after which a *SchemaValidationError is returned. Provider errors are
// returned immediately.
func Structured[T any](ctx context.Context, c *Caller, op string, messages []llm.Message, validate func(*T) error) (*T, error) {
	schema, err := schemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("%s: build schema: %w", op, err)
	}

	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}

	msgs := withSchemaInstruction(messages, schema)
	var lastErr *SchemaValidationError
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.Provider.Complete(ctx, llm.CompletionRequest{
			Model:       c.Model,
			Messages:    msgs,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			JSONMode:    true,
			Operation:   op,
			SchemaName:  op,
			Schema:      schema,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var out T
		perr := decodeJSON(resp.Content, &out)
		if perr == nil && validate != nil {
			perr = validate(&out)
		}
		if perr == nil {
			return &out, nil
		}

		lastErr = &SchemaValidationError{Operation: op, Raw: resp.Content, Err: perr}
		c.logger().Warn("structured output rejected",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(perr),
		)

		msgs = append(msgs[:len(msgs):len(msgs)],
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
				"That response was rejected: %v. Reply again with only a JSON object that matches the schema.", perr)},
		)
	}
	return nil, lastErr
}

var schemaCache sync.Map

func schemaFor[T any]() (json.RawMessage, error) {
	key := reflect.TypeFor[T]()
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(json.RawMessage), nil
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, json.RawMessage(raw))
	return raw, nil
}

func withSchemaInstruction(messages []llm.Message, schema json.RawMessage) []llm.Message {
	instruction := "Respond only with a JSON object that matches this JSON Schema:\n" + string(schema)
	out := make([]llm.Message, 0, len(messages)+1)
	placed := false
	for _, m := range messages {
		if m.Role == llm.RoleSystem && !placed {
			m.Content = m.Content + "\n\n" + instruction
			placed = true
		}
		out = append(out, m)
	}
	if !placed {
		out = append([]llm.Message{{Role: llm.RoleSystem, Content: instruction}}, out...)
	}
	return out
}

// decodeJSON extracts the outermost JSON object from content, tolerating
// markdown code fences and surrounding prose.
func decodeJSON(content string, out any) error {
	s := stripCodeFences(content)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return errors.New("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), out); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
