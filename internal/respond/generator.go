// Package respond produces the assistant's reply for a turn according to the
// selected response mode.
package respond

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/extract"
	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/knowledge"
	"github.com/equaliser/intake-agent/internal/llm"
	"github.com/equaliser/intake-agent/internal/memory"
)

// Mode is the response strategy for a turn.
type Mode string

const (
	ModeListen  Mode = "listen"
	ModeEducate Mode = "educate"
	ModeGuide   Mode = "guide"
	ModeAct     Mode = "act"
)

// ParseMode maps s onto a Mode. Anything unrecognised is ModeListen.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeEducate, ModeGuide, ModeAct:
		return m
	default:
		return ModeListen
	}
}

const (
	// GuideLeadIn precedes the numbered options in guide mode.
	GuideLeadIn = "To guide this properly, please tell me what feels most important:\n\n"
	// ActMessage is the hand-off returned in act mode without calling the
	// oracle, once the intake is finalised.
	ActMessage = "Thank you for providing this information. A specialist will be in touch."
)

// Retriever returns the topK most relevant text chunks for query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// OptionSource proposes follow-up options for guide mode.
type OptionSource interface {
	GenerateOptions(ctx context.Context, history []memory.Message, input string, tracker facts.Tracker, n int) ([]string, error)
}

// Config holds generator settings.
type Config struct {
	SystemPrompt string
	OptionCount  int
	TopK         int
	Logger       *zap.Logger
}

// Generator produces replies. A nil retriever disables educate mode.
type Generator struct {
	caller    *extract.Caller
	options   OptionSource
	retriever Retriever
	cfg       Config
	logger    *zap.Logger
}

// NewGenerator returns a Generator. Zero config values take the defaults:
// the built-in system prompt, four guide options and three retrieved chunks.
func NewGenerator(caller *extract.Caller, options OptionSource, retriever Retriever, cfg Config) *Generator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.OptionCount <= 0 {
		cfg.OptionCount = 4
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		caller:    caller,
		options:   options,
		retriever: retriever,
		cfg:       cfg,
		logger:    logger,
	}
}

// Request is the input for one reply.
type Request struct {
	Mode    Mode
	Input   string
	Intent  string
	History []memory.Message
	Tracker facts.Tracker
}

// Reply is the generated text and the mode that actually produced it, which
// differs from the requested mode when a branch degraded to listening.
type Reply struct {
	Text string
	Mode Mode
}

// Generate produces the reply for req.
func (g *Generator) Generate(ctx context.Context, req Request) (Reply, error) {
	switch ParseMode(string(req.Mode)) {
	case ModeAct:
		return Reply{Text: ActMessage, Mode: ModeAct}, nil
	case ModeGuide:
		return g.guide(ctx, req)
	case ModeEducate:
		return g.educate(ctx, req)
	default:
		return g.listen(ctx, req)
	}
}

func (g *Generator) listen(ctx context.Context, req Request) (Reply, error) {
	instruction := fmt.Sprintf(listenInstruction, req.Intent, req.Input) + openTopics(req.Tracker)
	text, err := g.caller.Text(ctx, "listen", g.chat(req, instruction))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, Mode: ModeListen}, nil
}

func (g *Generator) educate(ctx context.Context, req Request) (Reply, error) {
	fallback := req
	fallback.Intent = extract.IntentSeekingInformation

	if g.retriever == nil {
		return g.listen(ctx, fallback)
	}

	chunks, err := g.retriever.Retrieve(ctx, req.Input, g.cfg.TopK)
	if err != nil {
		g.logger.Warn("retrieval failed, answering without grounding", zap.Error(err))
		return g.listen(ctx, fallback)
	}
	if len(chunks) == 0 {
		return g.listen(ctx, fallback)
	}

	instruction := fmt.Sprintf(educateInstruction, knowledge.JoinContext(chunks), req.Intent, req.Input)
	text, err := g.caller.Text(ctx, "educate", g.chat(req, instruction))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, Mode: ModeEducate}, nil
}

func (g *Generator) guide(ctx context.Context, req Request) (Reply, error) {
	if g.options == nil {
		return g.listen(ctx, req)
	}
	opts, err := g.options.GenerateOptions(ctx, req.History, req.Input, req.Tracker, g.cfg.OptionCount)
	if err != nil {
		if extract.IsSchemaValidation(err) {
			g.logger.Warn("guide options unusable, listening instead", zap.Error(err))
			return g.listen(ctx, req)
		}
		return Reply{}, err
	}
	return Reply{Text: FormatOptions(opts), Mode: ModeGuide}, nil
}

// FormatOptions renders options as the guide-mode numbered list.
func FormatOptions(options []string) string {
	var sb strings.Builder
	sb.WriteString(GuideLeadIn)
	for i, o := range options {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, o)
	}
	return sb.String()
}

// chat builds the system prompt, the prior history, and the turn instruction.
// The final history entry is the current input, which the instruction
// already carries, so it is dropped.
func (g *Generator) chat(req Request, instruction string) []llm.Message {
	history := req.History
	if n := len(history); n > 0 && history[n-1].Role == memory.RoleUser && history[n-1].Text == req.Input {
		history = history[:n-1]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: g.cfg.SystemPrompt})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: instruction})
	return msgs
}

func openTopics(t facts.Tracker) string {
	if len(t.MissingCriticalFields) == 0 {
		return ""
	}
	labels := make([]string, len(t.MissingCriticalFields))
	for i, f := range t.MissingCriticalFields {
		labels[i] = facts.Label(f)
	}
	return fmt.Sprintf(openTopicsNote, strings.Join(labels, ", "))
}
