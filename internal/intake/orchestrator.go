package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/extract"
	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/memory"
	"github.com/equaliser/intake-agent/internal/respond"
)

// Analyzer is the structured-extraction surface the orchestrator drives.
// *extract.Extractor implements it.
type Analyzer interface {
	memory.Summarizer
	extract.Classifier
	ClassifyIntent(ctx context.Context, userOnly []memory.Message) (*extract.Intent, error)
	ExtractFacts(ctx context.Context, history []memory.Message, current facts.Record) (facts.Record, error)
	AssessCompletion(ctx context.Context, record facts.Record, intent *extract.Intent) (*facts.Tracker, error)
}

// Responder produces the reply text for a turn. *respond.Generator
// implements it.
type Responder interface {
	Generate(ctx context.Context, req respond.Request) (respond.Reply, error)
}

// Config holds the per-session limits.
type Config struct {
	MessageLimit      int
	CondenseThreshold int
	// MaxMissingCritical is how many critical fields may still be missing
	// when finalisation is offered.
	MaxMissingCritical int
	// ReconfirmAfter is how many user messages must pass after a declined
	// finalisation before it is offered again.
	ReconfirmAfter int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MessageLimit:       50,
		CondenseThreshold:  12,
		MaxMissingCritical: 0,
		ReconfirmAfter:     3,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	if c.MessageLimit < 1 {
		return fmt.Errorf("message limit must be positive, got %d", c.MessageLimit)
	}
	if c.CondenseThreshold < memory.KeepRecent {
		return fmt.Errorf("condense threshold must be at least %d, got %d", memory.KeepRecent, c.CondenseThreshold)
	}
	if c.MaxMissingCritical < 0 || c.MaxMissingCritical > len(facts.CriticalFields()) {
		return fmt.Errorf("max missing critical fields must be in [0,%d], got %d", len(facts.CriticalFields()), c.MaxMissingCritical)
	}
	if c.ReconfirmAfter < 0 {
		return fmt.Errorf("reconfirm-after must not be negative, got %d", c.ReconfirmAfter)
	}
	return nil
}

// Reply is the outcome of one turn.
type Reply struct {
	Message  string
	Complete bool
	// Mode is the response mode that produced Message, empty for fixed replies.
	Mode respond.Mode
	// Failed is set when the oracle failed and the session was rolled back;
	// the same input may be sent again.
	Failed bool
}

// Orchestrator runs the per-turn state machine. It holds no session state
// and is safe for concurrent use across sessions.
type Orchestrator struct {
	analyzer  Analyzer
	responder Responder
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

// NewOrchestrator returns an Orchestrator.
func NewOrchestrator(analyzer Analyzer, responder Responder, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		analyzer:  analyzer,
		responder: responder,
		cfg:       cfg,
		log:       logger,
		now:       time.Now,
	}, nil
}

// NewSession returns a fresh active session.
func (o *Orchestrator) NewSession(id string) (*Session, error) {
	mem, err := o.newMemory()
	if err != nil {
		return nil, err
	}
	now := o.now()
	return &Session{
		ID:           id,
		Memory:       mem,
		MessageLimit: o.cfg.MessageLimit,
		State:        StateActive,
		Tracker:      facts.InitialTracker(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Resume rebuilds a live session from a snapshot.
func (o *Orchestrator) Resume(snap Snapshot) (*Session, error) {
	mem, err := o.newMemory()
	if err != nil {
		return nil, err
	}
	s := &Session{Memory: mem}
	s.restore(snap)
	if s.MessageLimit <= 0 {
		s.MessageLimit = o.cfg.MessageLimit
	}
	return s, nil
}

func (o *Orchestrator) newMemory() (*memory.Manager, error) {
	return memory.NewManager(o.analyzer, o.cfg.CondenseThreshold, facts.FieldNames())
}

// ProcessTurn advances s by one user message. Oracle failures never reach
// the caller as errors: the session is rolled back and a fallback reply is
// returned with Failed set. The only error is the caller's own context
// being cancelled, in which case s is also rolled back.
func (o *Orchestrator) ProcessTurn(ctx context.Context, s *Session, input string) (Reply, error) {
	if s.Complete() {
		return Reply{Message: HandoffMessage, Complete: true}, nil
	}
	if strings.TrimSpace(input) == "" {
		return Reply{}, nil
	}

	snap := s.Snapshot()
	s.Memory.AddUserMessage(input)
	s.MessageCount++
	s.UpdatedAt = o.now()

	log := o.log.With(zap.String("session_id", s.ID), zap.Int("message_count", s.MessageCount))
	log.Debug("processing turn", zap.Int("input_len", len(input)), zap.String("state", string(s.State)))

	if s.State == StateAwaitingConfirmation {
		label, err := o.analyzer.Classify(ctx, input, extract.ConfirmationLabels)
		if err != nil {
			return o.rollback(ctx, s, snap, log, "confirmation", err, ConfirmationQuestion)
		}
		if label == "true" {
			reply, err := o.responder.Generate(ctx, respond.Request{
				Mode:    respond.ModeAct,
				Input:   input,
				History: s.Memory.ShortTerm(),
				Tracker: s.Tracker,
			})
			if err != nil {
				return o.rollback(ctx, s, snap, log, "act", err, ConfirmationQuestion)
			}
			s.State = StateComplete
			s.Memory.AddAssistantMessage(reply.Text)
			log.Info("session finalised by user")
			return Reply{Message: reply.Text, Complete: true, Mode: reply.Mode}, nil
		}
		s.State = StateActive
		s.DeclinedAt = s.MessageCount
		log.Info("finalisation declined, continuing intake")
	}

	mode := respond.ModeListen
	var intentName string
	intent, err := o.analyzer.ClassifyIntent(ctx, s.Memory.UserOnly())
	switch {
	case err == nil:
		mode = respond.ParseMode(intent.SuggestedMode)
		intentName = intent.PrimaryIntent
		if mode == respond.ModeAct {
			// Act is reserved for a confirmed finalisation.
			mode = respond.ModeListen
		}
	case extract.IsSchemaValidation(err) && ctx.Err() == nil:
		log.Warn("intent unusable, defaulting to listen", zap.Error(err))
	default:
		return o.rollback(ctx, s, snap, log, "intent", err, FallbackMessage)
	}

	history, err := s.Memory.ShortTermHistory(ctx)
	if err != nil {
		log.Warn("condensation failed, using full short-term log", zap.Error(err))
		history = s.Memory.ShortTerm()
	}

	reply, err := o.responder.Generate(ctx, respond.Request{
		Mode:    mode,
		Input:   input,
		Intent:  intentName,
		History: history,
		Tracker: s.Tracker,
	})
	if err != nil {
		return o.rollback(ctx, s, snap, log, "respond", err, FallbackMessage)
	}
	s.Memory.AddAssistantMessage(reply.Text)

	o.track(ctx, s, intent, log)

	message := reply.Text
	switch {
	case s.MessageCount >= s.MessageLimit:
		s.State = StateComplete
		log.Info("message limit reached, session complete", zap.Int("limit", s.MessageLimit))
	case s.Tracker.Ready(o.cfg.MaxMissingCritical) && !o.recentlyDeclined(s):
		s.State = StateAwaitingConfirmation
		s.Memory.AddAssistantMessage(ConfirmationQuestion)
		message += "\n\n" + ConfirmationQuestion
		log.Info("offering finalisation", zap.Int("missing_critical", len(s.Tracker.MissingCriticalFields)))
	}

	return Reply{Message: message, Complete: s.Complete(), Mode: reply.Mode}, nil
}

// track merges newly extracted facts and reassesses completeness. Failures
// only skip the update; the reply for the turn stands.
func (o *Orchestrator) track(ctx context.Context, s *Session, intent *extract.Intent, log *zap.Logger) {
	record, err := o.analyzer.ExtractFacts(ctx, s.Memory.ShortTerm(), s.Facts)
	if err != nil {
		log.Warn("fact extraction failed, keeping previous record", zap.Error(err))
		return
	}
	s.Facts = record

	tracker, err := o.analyzer.AssessCompletion(ctx, s.Facts, intent)
	if err != nil {
		log.Warn("completion assessment failed, keeping previous tracker", zap.Error(err))
		return
	}
	s.Tracker = *tracker
	log.Debug("facts updated",
		zap.Int("filled", tracker.FieldsFilledCount),
		zap.Int("missing_critical", len(tracker.MissingCriticalFields)),
		zap.String("confidence", string(tracker.ConfidenceLevel)))
}

func (o *Orchestrator) recentlyDeclined(s *Session) bool {
	return s.DeclinedAt > 0 && s.MessageCount-s.DeclinedAt < o.cfg.ReconfirmAfter
}

func (o *Orchestrator) rollback(ctx context.Context, s *Session, snap Snapshot, log *zap.Logger, step string, err error, message string) (Reply, error) {
	s.restore(snap)
	if ctx.Err() != nil {
		return Reply{}, fmt.Errorf("%s: %w", step, ctx.Err())
	}
	log.Error("turn failed, session rolled back", zap.String("step", step), zap.Error(err))
	return Reply{Message: message, Complete: s.Complete(), Failed: true}, nil
}
