// Package memory keeps the conversation logs for one intake session and
// condenses the short-term window when it grows past a threshold.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// KeepRecent is the number of raw messages preserved after condensation.
const KeepRecent = 3

// Role identifies who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single immutable entry in a log.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Summarizer condenses messages into a summary that keeps information
// relevant to the given categories.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message, categories []string) (string, error)
}

// ErrEmptySummary is returned when the summarizer produced no text.
var ErrEmptySummary = errors.New("memory: summarizer returned an empty summary")

// State is the serialisable content of a Manager.
type State struct {
	Full      []Message `json:"full"`
	ShortTerm []Message `json:"short_term"`
	UserOnly  []Message `json:"user_only"`
}

// Manager owns the full history, the short-term window, and the user-only
// history of a conversation. It is not safe for concurrent use; a session is
// processed by one goroutine at a time.
type Manager struct {
	summarizer Summarizer
	threshold  int
	categories []string
	now        func() time.Time

	full      []Message
	shortTerm []Message
	userOnly  []Message
}

// NewManager returns a Manager that condenses the short-term log once it
// holds more than threshold messages.
func NewManager(summarizer Summarizer, threshold int, categories []string) (*Manager, error) {
	if summarizer == nil {
		return nil, errors.New("memory: summarizer is required")
	}
	if threshold < KeepRecent {
		return nil, fmt.Errorf("memory: condense threshold %d is below the %d preserved messages", threshold, KeepRecent)
	}
	return &Manager{
		summarizer: summarizer,
		threshold:  threshold,
		categories: slices.Clone(categories),
		now:        time.Now,
	}, nil
}

// AddUserMessage appends text to all three logs.
func (m *Manager) AddUserMessage(text string) {
	msg := Message{Role: RoleUser, Text: text, Timestamp: m.now()}
	m.full = append(m.full, msg)
	m.shortTerm = append(m.shortTerm, msg)
	m.userOnly = append(m.userOnly, msg)
}

// AddAssistantMessage appends text to the full and short-term logs.
func (m *Manager) AddAssistantMessage(text string) {
	msg := Message{Role: RoleAssistant, Text: text, Timestamp: m.now()}
	m.full = append(m.full, msg)
	m.shortTerm = append(m.shortTerm, msg)
}

// ShortTermHistory returns the short-term log, condensing it first when it
// exceeds the threshold. If condensation fails the log is left exactly as it
// was and the error is returned.
func (m *Manager) ShortTermHistory(ctx context.Context) ([]Message, error) {
	if len(m.shortTerm) > m.threshold {
		if err := m.condense(ctx); err != nil {
			return nil, err
		}
	}
	return slices.Clone(m.shortTerm), nil
}

func (m *Manager) condense(ctx context.Context) error {
	summary, err := m.summarizer.Summarize(ctx, slices.Clone(m.shortTerm), m.categories)
	if err != nil {
		return fmt.Errorf("memory: condense %d messages: %w", len(m.shortTerm), err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return ErrEmptySummary
	}

	tail := m.shortTerm[max(0, len(m.shortTerm)-KeepRecent):]
	condensed := make([]Message, 0, 1+len(tail))
	condensed = append(condensed, Message{
		Role:      RoleAssistant,
		Text:      SummaryText(summary),
		Timestamp: m.now(),
	})
	condensed = append(condensed, tail...)
	m.shortTerm = condensed
	return nil
}

// SummaryText wraps a summary in the synthetic message format.
func SummaryText(summary string) string {
	return fmt.Sprintf("[Summary of previous conversation: %s]", summary)
}

// Full returns a copy of the complete history.
func (m *Manager) Full() []Message { return slices.Clone(m.full) }

// ShortTerm returns a copy of the short-term log without condensing.
func (m *Manager) ShortTerm() []Message { return slices.Clone(m.shortTerm) }

// UserOnly returns a copy of the user-only history.
func (m *Manager) UserOnly() []Message { return slices.Clone(m.userOnly) }

// Len returns the number of messages in the full history.
func (m *Manager) Len() int { return len(m.full) }

// Threshold returns the configured condense threshold.
func (m *Manager) Threshold() int { return m.threshold }

// State returns a copy of the logs for persistence or rollback.
func (m *Manager) State() State {
	return State{
		Full:      slices.Clone(m.full),
		ShortTerm: slices.Clone(m.shortTerm),
		UserOnly:  slices.Clone(m.userOnly),
	}
}

// Restore replaces the logs with s.
func (m *Manager) Restore(s State) {
	m.full = slices.Clone(s.Full)
	m.shortTerm = slices.Clone(s.ShortTerm)
	m.userOnly = slices.Clone(s.UserOnly)
}

// Transcript renders messages as "role: text" lines.
func Transcript(messages []Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
	}
	return sb.String()
}
