package embeddings

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/llm"
)

// retryingEmbedder repeats calls that failed with a timeout, rate limit or
// server error, using the same classification as the completion providers.
type retryingEmbedder struct {
	Embedder
	attempts int
	backoff  func(attempt int) time.Duration
	logger   *zap.Logger
}

func withRetry(e Embedder, attempts int, backoff func(int) time.Duration, logger *zap.Logger) *retryingEmbedder {
	if backoff == nil {
		backoff = llm.DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingEmbedder{Embedder: e, attempts: attempts, backoff: backoff, logger: logger}
}

func (r *retryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for attempt := 1; ; attempt++ {
		vecs, err := r.Embedder.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= r.attempts || !llm.Retryable(err) {
			return nil, err
		}
		r.logger.Warn("embedding failed",
			zap.String("embedder", r.Name()),
			zap.Int("attempt", attempt),
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
}
