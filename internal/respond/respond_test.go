package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/equaliser/intake-agent/internal/extract"
	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/llm"
	"github.com/equaliser/intake-agent/internal/llm/llmtest"
	"github.com/equaliser/intake-agent/internal/memory"
)

type stubRetriever struct {
	chunks []string
	err    error
	query  string
	topK   int
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, topK int) ([]string, error) {
	s.query, s.topK = query, topK
	return s.chunks, s.err
}

func newTestGenerator(p *llmtest.Provider, r Retriever) *Generator {
	ex := extract.NewExtractor(p, extract.Options{Model: "test-model", SchemaAttempts: 1})
	return NewGenerator(ex.Caller(), ex, r, Config{})
}

func history() []memory.Message {
	return []memory.Message{
		{Role: memory.RoleUser, Text: "My landlord kept my bond"},
		{Role: memory.RoleAssistant, Text: "I'm sorry to hear that. When did you move out?"},
		{Role: memory.RoleUser, Text: "What are my rights?"},
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"listen":  ModeListen,
		"Educate": ModeEducate,
		" guide ": ModeGuide,
		"ACT":     ModeAct,
		"dance":   ModeListen,
		"":        ModeListen,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestActReturnsFixedMessageWithoutOracle(t *testing.T) {
	p := llmtest.New()
	reply, err := newTestGenerator(p, nil).Generate(context.Background(), Request{Mode: ModeAct, Input: "ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != ActMessage || reply.Mode != ModeAct {
		t.Errorf("reply = %+v", reply)
	}
	if p.CallCount() != 0 {
		t.Errorf("act mode made %d oracle calls", p.CallCount())
	}
}

func TestListenPrompt(t *testing.T) {
	p := llmtest.New().Reply("listen", "  That sounds stressful. When did you move out?  ")
	g := newTestGenerator(p, nil)

	reply, err := g.Generate(context.Background(), Request{
		Mode:    "unknown",
		Input:   "What are my rights?",
		Intent:  extract.IntentAskingForHelp,
		History: history(),
		Tracker: facts.Tracker{MissingCriticalFields: []string{"key_dates"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Mode != ModeListen || reply.Text != "That sounds stressful. When did you move out?" {
		t.Errorf("reply = %+v", reply)
	}

	req := p.CallsFor("listen")[0]
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[0].Content != DefaultSystemPrompt {
		t.Error("expected default system prompt first")
	}
	// system + two prior messages + instruction; the current input is not repeated.
	if len(req.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(req.Messages))
	}
	if req.Messages[2].Role != llm.RoleAssistant {
		t.Errorf("assistant history mapped to %q", req.Messages[2].Role)
	}
	prompt := llmtest.LastUserContent(req)
	for _, want := range []string{"User Intent: asking_for_help", "User Input: What are my rights?", "key dates"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestEducateWithoutRetrieverFallsBackToListen(t *testing.T) {
	p := llmtest.New().Reply("listen", "Let's talk it through.")
	reply, err := newTestGenerator(p, nil).Generate(context.Background(), Request{
		Mode: ModeEducate, Input: "What is a bond?", Intent: extract.IntentAskingForHelp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Mode != ModeListen {
		t.Errorf("Mode = %q, want listen", reply.Mode)
	}
	prompt := llmtest.LastUserContent(p.CallsFor("listen")[0])
	if !strings.Contains(prompt, "User Intent: "+extract.IntentSeekingInformation) {
		t.Errorf("expected seeking_information intent:\n%s", prompt)
	}
}

func TestEducateGroundsOnRetrievedChunks(t *testing.T) {
	r := &stubRetriever{chunks: []string{"Bonds are lodged with the rental bonds authority.", "Claims must be made within 14 days."}}
	p := llmtest.New().Reply("educate", "Your bond is held by the authority.")
	reply, err := newTestGenerator(p, r).Generate(context.Background(), Request{
		Mode: ModeEducate, Input: "Who holds my bond?", Intent: extract.IntentAskingForHelp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Mode != ModeEducate {
		t.Errorf("Mode = %q", reply.Mode)
	}
	if r.query != "Who holds my bond?" || r.topK != 3 {
		t.Errorf("retrieve called with %q, %d", r.query, r.topK)
	}
	prompt := llmtest.LastUserContent(p.CallsFor("educate")[0])
	if !strings.Contains(prompt, "authority.\n\nClaims must") {
		t.Errorf("chunks should be joined by a blank line:\n%s", prompt)
	}
}

func TestEducateRetrievalFailureFallsBackToListen(t *testing.T) {
	for name, r := range map[string]*stubRetriever{
		"error": {err: errors.New("index missing")},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			p := llmtest.New().Reply("listen", "Tell me more.")
			reply, err := newTestGenerator(p, r).Generate(context.Background(), Request{Mode: ModeEducate, Input: "?"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reply.Mode != ModeListen || len(p.CallsFor("educate")) != 0 {
				t.Errorf("expected listen fallback, got %+v", reply)
			}
		})
	}
}

func TestGuideRendersNumberedOptions(t *testing.T) {
	p := llmtest.New().Reply("guide_options", `{"options":["Getting my bond back","Repairs","Ending the lease","Rent increase"]}`)
	reply, err := newTestGenerator(p, nil).Generate(context.Background(), Request{Mode: ModeGuide, Input: "not sure", History: history()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := GuideLeadIn + "1. Getting my bond back\n2. Repairs\n3. Ending the lease\n4. Rent increase\n"
	if reply.Text != want || reply.Mode != ModeGuide {
		t.Errorf("reply = %q (%s), want %q", reply.Text, reply.Mode, want)
	}
}

func TestGuideSchemaFailureFallsBackToListen(t *testing.T) {
	p := llmtest.New().
		Reply("guide_options", `{"options":["only one"]}`).
		Reply("listen", "What matters most to you right now?")
	reply, err := newTestGenerator(p, nil).Generate(context.Background(), Request{Mode: ModeGuide, Input: "not sure"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Mode != ModeListen {
		t.Errorf("Mode = %q, want listen", reply.Mode)
	}
}

func TestOracleFailurePropagates(t *testing.T) {
	p := llmtest.New().Fail("listen", fmt.Errorf("%w: down", llm.ErrOracleUnavailable))
	_, err := newTestGenerator(p, nil).Generate(context.Background(), Request{Mode: ModeListen, Input: "hi"})
	if !errors.Is(err, llm.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}

	p = llmtest.New().Fail("guide_options", fmt.Errorf("%w: slow", llm.ErrOracleTimeout))
	_, err = newTestGenerator(p, nil).Generate(context.Background(), Request{Mode: ModeGuide, Input: "hi"})
	if !errors.Is(err, llm.ErrOracleTimeout) {
		t.Fatalf("guide should surface transport failures, got %v", err)
	}
}
