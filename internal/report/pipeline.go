package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/extract"
	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/llm"
	"github.com/equaliser/intake-agent/internal/memory"
	"github.com/equaliser/intake-agent/internal/progress"
)

// DefaultTitle heads an assembled report.
const DefaultTitle = "Legal Intake Report"

// ErrEmptyDraft is the format failure for a section draft with no text.
var ErrEmptyDraft = errors.New("section draft is empty")

// SectionError aborts a report at the section that could not be drafted.
type SectionError struct {
	Index   int
	Heading string
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("drafting section %d (%s): %v", e.Index+1, e.Heading, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

// Options configures a Pipeline.
type Options struct {
	// DraftAttempts is how many times a blank draft is requested before the
	// report is aborted. Defaults to 2.
	DraftAttempts int
	Reporter      progress.Reporter
	Logger        *zap.Logger
}

// Pipeline generates reports.
type Pipeline struct {
	caller   *extract.Caller
	attempts int
	reporter progress.Reporter
	log      *zap.Logger
}

// NewPipeline returns a Pipeline that calls the oracle through caller.
func NewPipeline(caller *extract.Caller, opts Options) *Pipeline {
	if opts.DraftAttempts < 1 {
		opts.DraftAttempts = 2
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		caller:   caller,
		attempts: opts.DraftAttempts,
		reporter: opts.Reporter,
		log:      opts.Logger,
	}
}

// DesignSkeleton plans the report sections for a conversation.
func (p *Pipeline) DesignSkeleton(ctx context.Context, conversation []memory.Message, record facts.Record) (*Skeleton, error) {
	return extract.Structured(ctx, p.caller, "skeleton", []llm.Message{
		{Role: llm.RoleSystem, Content: skeletonSystemPrompt},
		{Role: llm.RoleUser, Content: userContent(conversation, record)},
	}, (*Skeleton).Validate)
}

// GenerateReport drafts every section of skel in order. Section i is shown
// the drafts of sections 0..i-1. Cancelling ctx stops the fold between
// sections; a section already being drafted always runs to completion. Any
// failure aborts the whole report and no drafts are returned.
func (p *Pipeline) GenerateReport(ctx context.Context, conversation []memory.Message, record facts.Record, skel *Skeleton) ([]string, error) {
	if skel == nil || len(skel.Sections) == 0 {
		return nil, ErrEmptySkeleton
	}

	content := userContent(conversation, record)
	drafts := make([]string, 0, len(skel.Sections))

	p.reporter.Start(len(skel.Sections))
	defer p.reporter.Finish()

	for i, sec := range skel.Sections {
		if err := ctx.Err(); err != nil {
			return nil, &SectionError{Index: i, Heading: sec.Heading, Err: err}
		}
		p.reporter.Update(i, sec.Heading)

		start := time.Now()
		text, err := p.draft(context.WithoutCancel(ctx), sec, content, strings.Join(drafts, "\n\n"))
		if err != nil {
			p.log.Error("section draft failed, aborting report",
				zap.Int("section", i+1), zap.String("heading", sec.Heading), zap.Error(err))
			return nil, &SectionError{Index: i, Heading: sec.Heading, Err: err}
		}
		p.log.Debug("section drafted",
			zap.Int("section", i+1),
			zap.String("heading", sec.Heading),
			zap.Int("length", len(text)),
			zap.Duration("duration", time.Since(start)))
		drafts = append(drafts, text)
	}
	p.reporter.Update(len(skel.Sections), "done")
	return drafts, nil
}

func (p *Pipeline) draft(ctx context.Context, sec Section, content, prior string) (string, error) {
	if prior == "" {
		prior = noPriorSections
	}
	subs := "none; write the section as continuous text"
	if len(sec.SubHeadings) > 0 {
		subs = strings.Join(sec.SubHeadings, "; ")
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(sectionSystemPrompt, sec.Heading, subs, prior)},
		{Role: llm.RoleUser, Content: content},
	}

	for attempt := 1; attempt <= p.attempts; attempt++ {
		text, err := p.caller.Text(ctx, "section", msgs)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
		p.log.Warn("blank section draft", zap.String("heading", sec.Heading), zap.Int("attempt", attempt))
	}
	return "", ErrEmptyDraft
}

// Document is a generated report.
type Document struct {
	Title    string
	Skeleton Skeleton
	Sections []string
	Markdown string
}

// Generate designs a skeleton, drafts every section and assembles the
// markdown.
func (p *Pipeline) Generate(ctx context.Context, title string, conversation []memory.Message, record facts.Record) (*Document, error) {
	if title == "" {
		title = DefaultTitle
	}
	skel, err := p.DesignSkeleton(ctx, conversation, record)
	if err != nil {
		return nil, fmt.Errorf("designing skeleton: %w", err)
	}
	p.log.Info("report skeleton designed", zap.Strings("sections", skel.Headings()))

	drafts, err := p.GenerateReport(ctx, conversation, record, skel)
	if err != nil {
		return nil, err
	}
	return &Document{
		Title:    title,
		Skeleton: *skel,
		Sections: drafts,
		Markdown: Assemble(title, drafts),
	}, nil
}

func userContent(conversation []memory.Message, record facts.Record) string {
	return "Conversation:\n" + memory.Transcript(conversation) + "\n\nExtracted facts:\n" + record.JSON()
}
