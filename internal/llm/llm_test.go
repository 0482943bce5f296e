package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// MockProvider is a test provider that records calls and returns canned responses.
// Errs, when non-empty, is consumed one entry per call before Response is used.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	Errs     []error
	Delay    time.Duration
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	delay := m.Delay
	var queued error
	if len(m.Errs) > 0 {
		queued = m.Errs[0]
		m.Errs = m.Errs[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if queued != nil {
		return nil, queued
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func noBackoff(int) time.Duration { return 0 }

// --- Tests ---

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := NewMockProvider("test")
	ctx := context.Background()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}

	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}

	if mock.Calls[0].Model != "test-model" {
		t.Errorf("expected model 'test-model', got %q", mock.Calls[0].Model)
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	providers := []string{"anthropic", "openai", "google", "openrouter"}
	for _, p := range providers {
		_, err := NewProvider(p, "some-model")
		if err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	_, err := NewProvider("unknown", "some-model")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryCreatesOllamaWithDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	provider, err := NewProvider("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ollamaP, ok := provider.(*OllamaProvider)
	if !ok {
		t.Fatal("expected *OllamaProvider")
	}
	if ollamaP.baseURL != "http://localhost:11434" {
		t.Errorf("expected default host, got %q", ollamaP.baseURL)
	}
}

func TestFactoryCreatesKeyedProviders(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("GOOGLE_API_KEY", "test-key")
	t.Setenv("OPENROUTER_API_KEY", "test-key")

	tests := []struct {
		provider string
		model    string
	}{
		{"anthropic", "claude-sonnet-4-5-20250929"},
		{"openai", "gpt-4o"},
		{"google", "gemini-2.0-flash"},
		{"openrouter", "anthropic/claude-sonnet-4-5"},
	}
	for _, tt := range tests {
		provider, err := NewProvider(tt.provider, tt.model)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.provider, err)
		}
		if provider.Name() != tt.provider {
			t.Errorf("expected name %q, got %q", tt.provider, provider.Name())
		}
	}
}

type fakeMessager struct {
	params anthropic.MessageNewParams
}

func (f *fakeMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: `{"ok":true}`}},
		Model:   anthropic.Model("claude-test"),
	}, nil
}

func TestAnthropicProviderMovesSystemPromptOutOfBand(t *testing.T) {
	fake := &fakeMessager{}
	p := &AnthropicProvider{messages: fake, model: "claude-test"}

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be kind"},
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: "again"},
		},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"ok":true}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if len(fake.params.System) != 1 || !strings.HasPrefix(fake.params.System[0].Text, "be kind") {
		t.Errorf("system prompt not forwarded: %+v", fake.params.System)
	}
	if !strings.Contains(fake.params.System[0].Text, "JSON") {
		t.Error("expected JSON instruction in system prompt")
	}
	if len(fake.params.Messages) != 3 {
		t.Errorf("expected 3 conversational messages, got %d", len(fake.params.Messages))
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleSystem, Content: "b"},
	})
	if system != "a\n\nb" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "u" {
		t.Errorf("rest = %+v", rest)
	}
}

func TestGoogleContentsRoles(t *testing.T) {
	contents := googleContents([]Message{
		{Role: RoleUser, Content: "my landlord kept my bond"},
		{Role: RoleAssistant, Content: "when did you move out?"},
	})
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("roles = %q, %q", contents[0].Role, contents[1].Role)
	}
	if got := contents[1].Parts[0].Text; got != "when did you move out?" {
		t.Errorf("text = %q", got)
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	resp, err := rl.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hello"}}}

	for i := 0; i < 2; i++ {
		if _, err := rl.Complete(ctx, req); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	if _, err := rl.Complete(ctx, req); err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
}

func TestReliableProviderRetriesServerErrors(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Errs = []error{
		&StatusError{Provider: "test", StatusCode: 503, Body: "busy"},
		&StatusError{Provider: "test", StatusCode: 429, Body: "slow down"},
	}
	rp := NewReliableProvider(mock, ReliableOptions{MaxAttempts: 3, Backoff: noBackoff})

	resp, err := rp.Complete(context.Background(), CompletionRequest{Operation: "listen"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", mock.CallCount())
	}
}

func TestReliableProviderGivesUpAfterMaxAttempts(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Err = &StatusError{Provider: "test", StatusCode: 500, Body: "boom"}
	rp := NewReliableProvider(mock, ReliableOptions{MaxAttempts: 2, Backoff: noBackoff})

	_, err := rp.Complete(context.Background(), CompletionRequest{Operation: "intent"})
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls, got %d", mock.CallCount())
	}
}

func TestReliableProviderDoesNotRetryClientErrors(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Err = &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}
	rp := NewReliableProvider(mock, ReliableOptions{MaxAttempts: 3, Backoff: noBackoff})

	_, err := rp.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestReliableProviderPerCallTimeout(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Delay = 200 * time.Millisecond
	rp := NewReliableProvider(mock, ReliableOptions{
		Timeout:     10 * time.Millisecond,
		MaxAttempts: 2,
		Backoff:     noBackoff,
	})

	_, err := rp.Complete(context.Background(), CompletionRequest{Operation: "facts"})
	if !errors.Is(err, ErrOracleTimeout) {
		t.Fatalf("expected ErrOracleTimeout, got %v", err)
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 attempts, got %d", mock.CallCount())
	}
	if !IsOracleFailure(err) {
		t.Error("IsOracleFailure should report true")
	}
}

func TestReliableProviderHonoursCallerCancellation(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Delay = time.Second
	rp := NewReliableProvider(mock, ReliableOptions{MaxAttempts: 3, Backoff: noBackoff})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rp.Complete(ctx, CompletionRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
	if IsOracleFailure(err) {
		t.Error("caller cancellation must not be reported as an oracle failure")
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want failureClass
	}{
		{context.DeadlineExceeded, failureTimeout},
		{&StatusError{StatusCode: 429}, failureRateLimit},
		{&StatusError{StatusCode: 502}, failureServer},
		{&StatusError{StatusCode: 401}, failureClient},
		{&openai.APIError{HTTPStatusCode: 500}, failureServer},
		{fmt.Errorf("wrapped: %w", &openai.RequestError{HTTPStatusCode: 404}), failureClient},
		{genai.APIError{Code: 503}, failureServer},
		{fmt.Errorf("embed: %w", genai.APIError{Code: 400}), failureClient},
		{errors.New("unexpected status code: 503"), failureServer},
		{errors.New("rate limit exceeded"), failureRateLimit},
		{errors.New("dial tcp: connection refused"), failureServer},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(&StatusError{Provider: "ollama", StatusCode: 500}) {
		t.Error("server errors should be retryable")
	}
	if Retryable(&StatusError{Provider: "ollama", StatusCode: 404}) {
		t.Error("missing model should not be retried")
	}
}

func TestWantsJSON(t *testing.T) {
	if (CompletionRequest{}).WantsJSON() {
		t.Error("empty request should not want JSON")
	}
	if !(CompletionRequest{Schema: []byte(`{"type":"object"}`)}).WantsJSON() {
		t.Error("schema implies JSON")
	}
}

func TestEstimateCostAccuracy(t *testing.T) {
	// claude-sonnet-4-5: $3/1M input, $15/1M output
	cost := EstimateCost("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000)
	expected := 18.0
	if cost < expected-0.01 || cost > expected+0.01 {
		t.Errorf("expected cost ~$%.2f, got $%.2f", expected, cost)
	}
	if EstimateCost("unknown-model", 1000, 500) != 0 {
		t.Error("expected 0 for unknown model")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"hello world!!", 3},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	mock := NewMockProvider("test")
	if got := NewRateLimitedProvider(mock, 0); got != Provider(mock) {
		t.Error("rpm 0 should return the provider unchanged")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60).(*RateLimitedProvider)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.lastFill = now
	rl.tokens = 0

	if d := rl.reserve(); d != time.Second {
		t.Fatalf("expected to wait 1s for a token at 60 rpm, got %v", d)
	}
	now = now.Add(1500 * time.Millisecond)
	if d := rl.reserve(); d != 0 {
		t.Fatalf("expected a token after refill, got wait %v", d)
	}
}

func TestUsageTracker(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Response.Model = "gpt-4o-mini"
	u := NewUsageTracker(mock)
	ctx := context.Background()

	for _, op := range []string{"intent", "listen", "intent"} {
		if _, err := u.Complete(ctx, CompletionRequest{Operation: op}); err != nil {
			t.Fatal(err)
		}
	}
	mock.Err = errors.New("down")
	if _, err := u.Complete(ctx, CompletionRequest{Operation: "facts"}); err == nil {
		t.Fatal("expected error")
	}

	total := u.Total()
	if total.Calls != 3 || total.InputTokens != 30 || total.OutputTokens != 60 {
		t.Errorf("total = %+v", total)
	}
	if total.CostUSD <= 0 {
		t.Error("expected a cost for a priced model")
	}
	ops := u.ByOperation()
	if len(ops) != 2 || ops[0].Operation != "intent" || ops[0].Calls != 2 {
		t.Errorf("by operation = %+v", ops)
	}
}
