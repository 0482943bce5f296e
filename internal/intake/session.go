// Package intake runs legal intake conversations: the per-turn state
// machine, the session service exposed to hosts, and session persistence.
package intake

import (
	"errors"
	"time"

	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/memory"
	"github.com/equaliser/intake-agent/internal/respond"
)

// State is the lifecycle stage of a session.
type State string

const (
	StateActive               State = "active"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateComplete             State = "complete"
)

// Fixed replies.
const (
	Greeting             = "Hello, I'm Equaliser. I'm here to help understand your legal situation. What brings you here today?"
	HandoffMessage       = respond.ActMessage
	ConfirmationQuestion = "I believe I have enough information to draft a report of your situation. Would you like to continue to discuss your case or move on to finalising your report?"
	FallbackMessage      = "I'm sorry, I wasn't able to respond just now. Could you send that again?"
)

var (
	// ErrInvalidSession is returned for an unknown session ID.
	ErrInvalidSession = errors.New("invalid session ID")
	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("session already exists")
)

// Session is the live state of one intake conversation. A Session is owned
// by a single goroutine for the duration of a turn.
type Session struct {
	ID           string
	Memory       *memory.Manager
	MessageCount int
	MessageLimit int
	State        State
	Facts        facts.Record
	Tracker      facts.Tracker
	// DeclinedAt is the message count at the last declined finalisation,
	// zero if the user never declined.
	DeclinedAt int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Complete reports whether the session has reached its terminal state.
func (s *Session) Complete() bool { return s.State == StateComplete }

// Snapshot is the serialisable form of a Session.
type Snapshot struct {
	ID           string        `json:"id"`
	Memory       memory.State  `json:"memory"`
	MessageCount int           `json:"message_count"`
	MessageLimit int           `json:"message_limit"`
	State        State         `json:"state"`
	Facts        facts.Record  `json:"facts"`
	Tracker      facts.Tracker `json:"tracker"`
	DeclinedAt   int           `json:"declined_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Complete reports whether the snapshot is of a finished session.
func (s Snapshot) Complete() bool { return s.State == StateComplete }

// Snapshot captures the session. The copy shares no mutable state with s.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.ID,
		Memory:       s.Memory.State(),
		MessageCount: s.MessageCount,
		MessageLimit: s.MessageLimit,
		State:        s.State,
		Facts:        s.Facts.Clone(),
		Tracker:      s.Tracker,
		DeclinedAt:   s.DeclinedAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// restore rolls s back to snap.
func (s *Session) restore(snap Snapshot) {
	s.ID = snap.ID
	s.Memory.Restore(snap.Memory)
	s.MessageCount = snap.MessageCount
	s.MessageLimit = snap.MessageLimit
	s.State = snap.State
	s.Facts = snap.Facts
	s.Tracker = snap.Tracker
	s.DeclinedAt = snap.DeclinedAt
	s.CreatedAt = snap.CreatedAt
	s.UpdatedAt = snap.UpdatedAt
}
