// Package llmtest provides a scripted llm.Provider for tests of packages that
// drive the completion oracle.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/equaliser/intake-agent/internal/llm"
)

// Responder produces the reply for a single request.
type Responder func(req llm.CompletionRequest) (string, error)

// Provider answers requests by their Operation. Queued replies for an
// operation are consumed in order; the last one repeats once the queue is
// down to a single entry. Operations with no script fall back to Default.
type Provider struct {
	mu      sync.Mutex
	queues  map[string][]Responder
	Default Responder
	Calls   []llm.CompletionRequest
}

// New returns an empty scripted provider.
func New() *Provider {
	return &Provider{queues: make(map[string][]Responder)}
}

func (p *Provider) Name() string { return "scripted" }

// Reply queues fixed text replies for op.
func (p *Provider) Reply(op string, contents ...string) *Provider {
	for _, c := range contents {
		p.On(op, func(llm.CompletionRequest) (string, error) { return c, nil })
	}
	return p
}

// Fail queues an error reply for op.
func (p *Provider) Fail(op string, err error) *Provider {
	return p.On(op, func(llm.CompletionRequest) (string, error) { return "", err })
}

// On queues a custom responder for op.
func (p *Provider) On(op string, fn Responder) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues[op] = append(p.queues[op], fn)
	return p
}

// Reset drops the script for op.
func (p *Provider) Reset(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.queues, op)
}

func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	var fn Responder
	if q := p.queues[req.Operation]; len(q) > 0 {
		fn = q[0]
		if len(q) > 1 {
			p.queues[req.Operation] = q[1:]
		}
	} else {
		fn = p.Default
	}
	p.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("llmtest: no reply scripted for operation %q", req.Operation)
	}
	content, err := fn(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{
		Content:      content,
		InputTokens:  llm.EstimateTokens(joinContent(req.Messages)),
		OutputTokens: llm.EstimateTokens(content),
		Model:        "scripted",
		FinishReason: "stop",
	}, nil
}

// CallsFor returns the recorded requests for op in call order.
func (p *Provider) CallsFor(op string) []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []llm.CompletionRequest
	for _, c := range p.Calls {
		if c.Operation == op {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns the total number of requests seen.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastUserContent returns the content of the final user message in req.
func LastUserContent(req llm.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func joinContent(msgs []llm.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
	}
	return sb.String()
}
