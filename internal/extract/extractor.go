package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/llm"
	"github.com/equaliser/intake-agent/internal/memory"
)

// Primary intents.
const (
	IntentVenting             = "venting"
	IntentSeekingValidation   = "seeking_validation"
	IntentAskingForHelp       = "asking_for_help"
	IntentExploringOptions    = "exploring_options"
	IntentReadyToProceed      = "ready_to_proceed"
	IntentExpressingConfusion = "expressing_confusion"

	// IntentSeekingInformation is assigned when an educate turn has to fall
	// back to listening.
	IntentSeekingInformation = "seeking_information"
)

var primaryIntents = []string{
	IntentVenting,
	IntentSeekingValidation,
	IntentAskingForHelp,
	IntentExploringOptions,
	IntentReadyToProceed,
	IntentExpressingConfusion,
}

// Intent is the per-turn classification of what the user wants.
type Intent struct {
	PrimaryIntent      string  `json:"primary_intent" jsonschema:"required,enum=venting,enum=seeking_validation,enum=asking_for_help,enum=exploring_options,enum=ready_to_proceed,enum=expressing_confusion"`
	EmotionalIntensity float64 `json:"emotional_intensity" jsonschema:"required,minimum=0,maximum=1"`
	NeedsReassurance   bool    `json:"needs_reassurance" jsonschema:"required"`
	SuggestedMode      string  `json:"suggested_mode" jsonschema:"required,enum=listen,enum=educate,enum=guide"`
	Reasoning          string  `json:"reasoning,omitempty"`
}

func (i *Intent) validate() error {
	i.PrimaryIntent = strings.ToLower(strings.TrimSpace(i.PrimaryIntent))
	if !slices.Contains(primaryIntents, i.PrimaryIntent) {
		return fmt.Errorf("unknown primary_intent %q", i.PrimaryIntent)
	}
	if i.EmotionalIntensity < 0 || i.EmotionalIntensity > 1 {
		return fmt.Errorf("emotional_intensity %v outside [0,1]", i.EmotionalIntensity)
	}
	i.SuggestedMode = strings.ToLower(strings.TrimSpace(i.SuggestedMode))
	return nil
}

// Label is a classifier label with the meaning shown to the oracle.
type Label struct {
	Name        string
	Description string
}

// ConfirmationLabels classify the answer to the finalisation question.
var ConfirmationLabels = []Label{
	{Name: "true", Description: "the user wants to finalise and move on to the report"},
	{Name: "false", Description: "the user wants to keep discussing their case"},
}

// Classifier assigns one of labels to text.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []Label) (string, error)
}

// Options configures an Extractor.
type Options struct {
	Model          string
	Temperature    float64
	SchemaAttempts int
	Logger         *zap.Logger
}

// Extractor produces typed records from conversation text.
type Extractor struct {
	caller *Caller
	logger *zap.Logger
}

// NewExtractor returns an Extractor backed by provider.
func NewExtractor(provider llm.Provider, opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		caller: &Caller{
			Provider:    provider,
			Model:       opts.Model,
			Temperature: opts.Temperature,
			Attempts:    opts.SchemaAttempts,
			Logger:      logger,
		},
		logger: logger,
	}
}

// Caller exposes the shared oracle settings for other structured pipelines.
func (e *Extractor) Caller() *Caller { return e.caller }

// ClassifyIntent classifies the user's intent from their own messages.
func (e *Extractor) ClassifyIntent(ctx context.Context, userOnly []memory.Message) (*Intent, error) {
	prompt := "Client messages so far, oldest first:\n\n" + memory.Transcript(userOnly) +
		"\n\nClassify the intent of the most recent message in the context of the earlier ones."
	return Structured(ctx, e.caller, "intent", []llm.Message{
		{Role: llm.RoleSystem, Content: intentSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, (*Intent).validate)
}

// ExtractFacts extracts facts from history and merges them into current
// field by field.
func (e *Extractor) ExtractFacts(ctx context.Context, history []memory.Message, current facts.Record) (facts.Record, error) {
	var sb strings.Builder
	sb.WriteString("Facts already recorded:\n")
	sb.WriteString(current.JSON())
	sb.WriteString("\n\nConversation:\n")
	sb.WriteString(memory.Transcript(history))
	sb.WriteString("\n\nReturn the fields that the conversation supports. Repeat a recorded fact only if the client corrected or refined it.")

	extracted, err := Structured(ctx, e.caller, "facts", []llm.Message{
		{Role: llm.RoleSystem, Content: factsSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}, func(r *facts.Record) error { return r.Validate() })
	if err != nil {
		return current, err
	}
	return current.Merge(*extracted), nil
}

type assessment struct {
	ConfidenceLevel       string   `json:"confidence_level" jsonschema:"required,enum=low,enum=medium,enum=high"`
	MissingCriticalFields []string `json:"missing_critical_fields" jsonschema:"required"`
	UncertainFields       []string `json:"uncertain_fields"`
	UserEmotions          []string `json:"user_emotions"`
	ReasonNotReady        string   `json:"reason_not_ready,omitempty"`
}

// AssessCompletion judges the record from its derived metrics rather than
// the transcript. Counts and the ratio are computed locally; a critical field
// that is unset stays missing whatever the oracle says.
func (e *Extractor) AssessCompletion(ctx context.Context, record facts.Record, intent *Intent) (*facts.Tracker, error) {
	metrics := record.Metrics()
	metricsJSON, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("completion: encode metrics: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Critical fields: ")
	sb.WriteString(strings.Join(facts.CriticalFields(), ", "))
	sb.WriteString("\n\nMetrics:\n")
	sb.Write(metricsJSON)
	sb.WriteString("\n\nFact record:\n")
	sb.WriteString(record.JSON())
	if intent != nil {
		fmt.Fprintf(&sb, "\n\nLatest client intent: %s (emotional intensity %.2f)", intent.PrimaryIntent, intent.EmotionalIntensity)
	}

	a, err := Structured[assessment](ctx, e.caller, "completion", []llm.Message{
		{Role: llm.RoleSystem, Content: completionSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}, nil)
	if err != nil {
		return nil, err
	}

	tracker := facts.TrackerFromMetrics(metrics)
	tracker.ConfidenceLevel = facts.ParseConfidence(a.ConfidenceLevel)
	tracker.MissingCriticalFields = mergeMissing(metrics.MissingCritical, a.MissingCriticalFields)
	tracker.UncertainFields = facts.KnownFields(a.UncertainFields)
	tracker.UserEmotions = nonBlank(a.UserEmotions)
	tracker.ReasonNotReady = strings.TrimSpace(a.ReasonNotReady)
	if err := tracker.Validate(); err != nil {
		return nil, &SchemaValidationError{Operation: "completion", Err: err}
	}
	return &tracker, nil
}

// mergeMissing unions the locally missing fields with the critical fields
// the oracle flagged, in critical-list order.
func mergeMissing(local, flagged []string) []string {
	var out []string
	for _, name := range facts.CriticalFields() {
		if slices.Contains(local, name) || slices.Contains(flagged, name) {
			out = append(out, name)
		}
	}
	return out
}

type optionList struct {
	Options []string `json:"options" jsonschema:"required"`
}

// GenerateOptions proposes exactly n follow-up options aimed at the missing
// and uncertain fields in tracker.
func (e *Extractor) GenerateOptions(ctx context.Context, history []memory.Message, input string, tracker facts.Tracker, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("guide_options: option count must be positive, got %d", n)
	}

	topics := make([]string, 0, len(tracker.MissingCriticalFields)+len(tracker.UncertainFields))
	for _, f := range tracker.MissingCriticalFields {
		topics = append(topics, facts.Label(f))
	}
	for _, f := range tracker.UncertainFields {
		topics = append(topics, facts.Label(f)+" (uncertain)")
	}
	if len(topics) == 0 {
		topics = append(topics, "anything the client has not yet covered")
	}

	prompt := fmt.Sprintf("Conversation:\n%s\n\nLatest client message: %s\n\nTopics still open: %s\n\nWrite exactly %d options.",
		memory.Transcript(history), input, strings.Join(topics, "; "), n)

	list, err := Structured(ctx, e.caller, "guide_options", []llm.Message{
		{Role: llm.RoleSystem, Content: optionsSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, func(l *optionList) error {
		l.Options = nonBlank(l.Options)
		if len(l.Options) < n {
			return fmt.Errorf("got %d options, need %d", len(l.Options), n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list.Options[:n], nil
}

// Summarize condenses messages, keeping what relates to categories. It
// implements memory.Summarizer.
func (e *Extractor) Summarize(ctx context.Context, messages []memory.Message, categories []string) (string, error) {
	labels := make([]string, len(categories))
	for i, c := range categories {
		labels[i] = facts.Label(c)
	}
	prompt := fmt.Sprintf("Categories to preserve: %s\n\nConversation:\n%s",
		strings.Join(labels, ", "), memory.Transcript(messages))
	return e.caller.Text(ctx, "condense", []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
}

type classification struct {
	Label string `json:"label" jsonschema:"required"`
}

// Classify assigns one of labels to text and returns the label name.
func (e *Extractor) Classify(ctx context.Context, text string, labels []Label) (string, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("classify: no labels")
	}
	var sb strings.Builder
	sb.WriteString("Labels:\n")
	for _, l := range labels {
		fmt.Fprintf(&sb, "- %s: %s\n", l.Name, l.Description)
	}
	sb.WriteString("\nText:\n")
	sb.WriteString(text)

	c, err := Structured(ctx, e.caller, "classify", []llm.Message{
		{Role: llm.RoleSystem, Content: classifySystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}, func(c *classification) error {
		c.Label = strings.ToLower(strings.TrimSpace(c.Label))
		for _, l := range labels {
			if strings.EqualFold(l.Name, c.Label) {
				c.Label = l.Name
				return nil
			}
		}
		return fmt.Errorf("label %q is not one of the allowed labels", c.Label)
	})
	if err != nil {
		return "", err
	}
	return c.Label, nil
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
