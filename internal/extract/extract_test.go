package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/llm"
	"github.com/equaliser/intake-agent/internal/llm/llmtest"
	"github.com/equaliser/intake-agent/internal/memory"
)

func newTestExtractor(p llm.Provider) *Extractor {
	return NewExtractor(p, Options{Model: "test-model", SchemaAttempts: 2})
}

func conversation() []memory.Message {
	return []memory.Message{
		{Role: memory.RoleUser, Text: "I need help with custody of my children"},
		{Role: memory.RoleAssistant, Text: "That sounds hard. Can you tell me more?"},
		{Role: memory.RoleUser, Text: "We separated in January 2024"},
	}
}

func TestClassifyIntentUsesOnlyUserMessages(t *testing.T) {
	p := llmtest.New().Reply("intent", "```json\n{\"primary_intent\":\"asking_for_help\",\"emotional_intensity\":0.6,\"needs_reassurance\":true,\"suggested_mode\":\"Listen\"}\n```")
	e := newTestExtractor(p)

	var userOnly []memory.Message
	for _, m := range conversation() {
		if m.Role == memory.RoleUser {
			userOnly = append(userOnly, m)
		}
	}

	intent, err := e.ClassifyIntent(context.Background(), userOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.PrimaryIntent != IntentAskingForHelp {
		t.Errorf("PrimaryIntent = %q", intent.PrimaryIntent)
	}
	if intent.SuggestedMode != "listen" {
		t.Errorf("SuggestedMode should be normalised, got %q", intent.SuggestedMode)
	}

	calls := p.CallsFor("intent")
	if len(calls) != 1 {
		t.Fatalf("expected 1 intent call, got %d", len(calls))
	}
	prompt := llmtest.LastUserContent(calls[0])
	if strings.Contains(prompt, "That sounds hard") {
		t.Error("intent prompt must not include assistant messages")
	}
	if len(calls[0].Schema) == 0 || !calls[0].JSONMode {
		t.Error("expected schema-constrained JSON request")
	}
	if !strings.Contains(calls[0].Messages[0].Content, "JSON Schema") {
		t.Error("expected schema instruction in system prompt")
	}
}

func TestStructuredRetriesOnceThenSucceeds(t *testing.T) {
	p := llmtest.New().Reply("intent",
		"I think the user is venting.",
		`{"primary_intent":"venting","emotional_intensity":0.9,"needs_reassurance":true,"suggested_mode":"listen"}`,
	)
	e := newTestExtractor(p)

	intent, err := e.ClassifyIntent(context.Background(), conversation()[:1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.PrimaryIntent != IntentVenting {
		t.Errorf("PrimaryIntent = %q", intent.PrimaryIntent)
	}

	calls := p.CallsFor("intent")
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if !strings.Contains(llmtest.LastUserContent(calls[1]), "rejected") {
		t.Error("retry should carry the validation feedback")
	}
}

func TestStructuredSurfacesSchemaValidationError(t *testing.T) {
	p := llmtest.New().Reply("intent", `{"primary_intent":"dancing","emotional_intensity":0.2,"needs_reassurance":false,"suggested_mode":"listen"}`)
	e := newTestExtractor(p)

	_, err := e.ClassifyIntent(context.Background(), conversation()[:1])
	var sve *SchemaValidationError
	if !errors.As(err, &sve) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
	if sve.Operation != "intent" {
		t.Errorf("Operation = %q", sve.Operation)
	}
	if !IsSchemaValidation(err) {
		t.Error("IsSchemaValidation should be true")
	}
	if n := len(p.CallsFor("intent")); n != 2 {
		t.Errorf("expected exactly one retry, got %d calls", n)
	}
}

func TestStructuredDoesNotRetryProviderFailures(t *testing.T) {
	p := llmtest.New().Fail("intent", fmt.Errorf("%w: boom", llm.ErrOracleUnavailable))
	e := newTestExtractor(p)

	_, err := e.ClassifyIntent(context.Background(), conversation()[:1])
	if !errors.Is(err, llm.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if IsSchemaValidation(err) {
		t.Error("provider failure must not look like a schema failure")
	}
	if n := p.CallCount(); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
}

func TestExtractFactsMergesIntoCurrentRecord(t *testing.T) {
	p := llmtest.New().Reply("facts", `{
		"matter_type": null,
		"key_dates": ["January 2024: separation"],
		"children_involved": true,
		"parties_involved": []
	}`)
	e := newTestExtractor(p)

	family := "family"
	current := facts.Record{
		MatterType:      &family,
		PartiesInvolved: []string{"client", "former partner"},
	}

	got, err := e.ExtractFacts(context.Background(), conversation(), current)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MatterType == nil || *got.MatterType != "family" {
		t.Errorf("matter_type lost: %v", got.MatterType)
	}
	if diff := cmp.Diff([]string{"client", "former partner"}, got.PartiesInvolved); diff != "" {
		t.Errorf("parties overwritten by empty list:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"January 2024: separation"}, got.KeyDates); diff != "" {
		t.Errorf("key_dates:\n%s", diff)
	}
	if got.ChildrenInvolved == nil || !*got.ChildrenInvolved {
		t.Error("children_involved not merged")
	}

	prompt := llmtest.LastUserContent(p.CallsFor("facts")[0])
	if !strings.Contains(prompt, `"matter_type": "family"`) || !strings.Contains(prompt, "assistant: That sounds hard") {
		t.Errorf("facts prompt should carry the record and full history, got:\n%s", prompt)
	}
}

func TestExtractFactsReturnsCurrentOnFailure(t *testing.T) {
	p := llmtest.New().Reply("facts", `{"urgency_score": 42}`)
	e := newTestExtractor(p)

	family := "family"
	current := facts.Record{MatterType: &family}
	got, err := e.ExtractFacts(context.Background(), conversation(), current)
	if !IsSchemaValidation(err) {
		t.Fatalf("expected schema failure, got %v", err)
	}
	if diff := cmp.Diff(current, got); diff != "" {
		t.Errorf("record changed on failure:\n%s", diff)
	}
}

func TestAssessCompletionKeepsUnsetCriticalFieldsMissing(t *testing.T) {
	p := llmtest.New().Reply("completion", `{
		"confidence_level": "High",
		"missing_critical_fields": ["client_name", "risk_level"],
		"uncertain_fields": ["matter_type", "not_a_field"],
		"user_emotions": ["anxious", " "],
		"reason_not_ready": "No financial details yet."
	}`)
	e := newTestExtractor(p)

	family := "family"
	record := facts.Record{MatterType: &family}

	tracker, err := e.AssessCompletion(context.Background(), record, &Intent{PrimaryIntent: IntentVenting, EmotionalIntensity: 0.8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := facts.CriticalFields()[1:] // everything except matter_type
	if diff := cmp.Diff(want, tracker.MissingCriticalFields); diff != "" {
		t.Errorf("missing critical (-want +got):\n%s", diff)
	}
	if tracker.ConfidenceLevel != facts.ConfidenceHigh {
		t.Errorf("ConfidenceLevel = %q", tracker.ConfidenceLevel)
	}
	if diff := cmp.Diff([]string{"matter_type"}, tracker.UncertainFields); diff != "" {
		t.Errorf("uncertain fields:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"anxious"}, tracker.UserEmotions); diff != "" {
		t.Errorf("emotions:\n%s", diff)
	}
	if tracker.FieldsFilledCount != 1 || tracker.FieldsTotalCount != len(facts.FieldNames()) {
		t.Errorf("counts = %d/%d", tracker.FieldsFilledCount, tracker.FieldsTotalCount)
	}
	if err := tracker.Validate(); err != nil {
		t.Errorf("tracker invalid: %v", err)
	}
}

func TestAssessCompletionCanFlagFilledCriticalField(t *testing.T) {
	p := llmtest.New().Reply("completion", `{"confidence_level":"medium","missing_critical_fields":["matter_type"]}`)
	e := newTestExtractor(p)

	vague := "something legal"
	tracker, err := e.AssessCompletion(context.Background(), facts.Record{MatterType: &vague}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracker.MissingCriticalFields[0] != "matter_type" {
		t.Errorf("expected vague matter_type to stay missing, got %v", tracker.MissingCriticalFields)
	}
}

func TestGenerateOptions(t *testing.T) {
	tracker := facts.Tracker{MissingCriticalFields: []string{"income_sources"}, UncertainFields: []string{"key_dates"}}

	t.Run("truncates extras", func(t *testing.T) {
		p := llmtest.New().Reply("guide_options", `{"options":["a","b","c","d","e"]}`)
		got, err := newTestExtractor(p).GenerateOptions(context.Background(), conversation(), "help", tracker, 4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"a", "b", "c", "d"}, got); diff != "" {
			t.Errorf("options:\n%s", diff)
		}
		prompt := llmtest.LastUserContent(p.CallsFor("guide_options")[0])
		if !strings.Contains(prompt, "income sources") || !strings.Contains(prompt, "key dates (uncertain)") {
			t.Errorf("prompt should name open topics:\n%s", prompt)
		}
	})

	t.Run("too few is a schema failure", func(t *testing.T) {
		p := llmtest.New().Reply("guide_options", `{"options":["a","  ","b"]}`)
		_, err := newTestExtractor(p).GenerateOptions(context.Background(), conversation(), "help", tracker, 4)
		if !IsSchemaValidation(err) {
			t.Fatalf("expected schema failure, got %v", err)
		}
	})
}

func TestClassify(t *testing.T) {
	p := llmtest.New().Reply("classify", `{"label":" TRUE "}`)
	label, err := newTestExtractor(p).Classify(context.Background(), "yes, let's finish", ConfirmationLabels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "true" {
		t.Errorf("label = %q", label)
	}

	p = llmtest.New().Reply("classify", `{"label":"maybe"}`)
	if _, err := newTestExtractor(p).Classify(context.Background(), "hmm", ConfirmationLabels); !IsSchemaValidation(err) {
		t.Errorf("expected schema failure for unknown label, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	p := llmtest.New().Reply("condense", "  Client separated in January 2024.  ")
	got, err := newTestExtractor(p).Summarize(context.Background(), conversation(), []string{"key_dates"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Client separated in January 2024." {
		t.Errorf("summary = %q", got)
	}
	if !strings.Contains(llmtest.LastUserContent(p.Calls[0]), "key dates") {
		t.Error("categories should be named in the prompt")
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	if err := decodeJSON("Sure! {\"a\": 3} hope that helps", &v); err != nil || v.A != 3 {
		t.Errorf("decodeJSON prose: v=%+v err=%v", v, err)
	}
	if err := decodeJSON("no json here", &v); err == nil {
		t.Error("expected error without an object")
	}
}
