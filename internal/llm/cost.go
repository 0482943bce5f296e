package llm

import (
	"context"
	"sort"
	"sync"
)

// modelPricing is USD per million tokens.
type modelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var priceTable = map[string]modelPricing{
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5-20251001":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-opus-4-6":            {InputPerMillion: 15.00, OutputPerMillion: 75.00},

	"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":     {InputPerMillion: 2.00, OutputPerMillion: 8.00},

	"gemini-2.0-flash": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gemini-2.5-flash": {InputPerMillion: 0.30, OutputPerMillion: 2.50},
	"gemini-2.5-pro":   {InputPerMillion: 1.25, OutputPerMillion: 10.00},
}

// EstimateCost returns the estimated cost in USD, or 0 for a model with no
// known pricing.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := priceTable[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000.0*pricing.InputPerMillion +
		float64(outputTokens)/1_000_000.0*pricing.OutputPerMillion
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

// Usage is the accumulated token use of one operation.
type Usage struct {
	Operation    string  `json:"operation"`
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// UsageTracker records token use per operation for the requests that pass
// through it. It is safe for concurrent use.
type UsageTracker struct {
	provider Provider

	mu    sync.Mutex
	byOp  map[string]*Usage
	total Usage
}

// NewUsageTracker wraps provider.
func NewUsageTracker(provider Provider) *UsageTracker {
	return &UsageTracker{provider: provider, byOp: make(map[string]*Usage)}
}

func (u *UsageTracker) Name() string { return u.provider.Name() }

func (u *UsageTracker) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := u.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	cost := EstimateCost(model, resp.InputTokens, resp.OutputTokens)

	u.mu.Lock()
	defer u.mu.Unlock()
	op := u.byOp[req.Operation]
	if op == nil {
		op = &Usage{Operation: req.Operation}
		u.byOp[req.Operation] = op
	}
	for _, t := range []*Usage{op, &u.total} {
		t.Calls++
		t.InputTokens += resp.InputTokens
		t.OutputTokens += resp.OutputTokens
		t.CostUSD += cost
	}
	return resp, nil
}

// Total returns the usage across all operations.
func (u *UsageTracker) Total() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}

// ByOperation returns per-operation usage sorted by operation name.
func (u *UsageTracker) ByOperation() []Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Usage, 0, len(u.byOp))
	for _, v := range u.byOp {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
