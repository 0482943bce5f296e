package embeddings

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Embedder turns knowledge passages and queries into vectors.
type Embedder interface {
	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector width, or 0 when the model is not known
	// ahead of the first call.
	Dimensions() int

	Name() string
}

// Options configures New.
type Options struct {
	// Provider names the backend. Providers without an embeddings endpoint
	// (anthropic, openrouter) use OpenAI's.
	Provider string
	// Model selects the embedding model. Empty picks the provider default.
	Model string
	// BaseURL overrides the endpoint: the Ollama host, or an
	// OpenAI-compatible gateway. Empty uses OLLAMA_HOST or the public API.
	BaseURL string
	// MaxAttempts bounds attempts per call on transient failures.
	MaxAttempts int
	// Backoff returns the delay before the given retry. Nil uses
	// llm.DefaultBackoff.
	Backoff func(attempt int) time.Duration
	Logger  *zap.Logger
}

// New builds the Embedder named by opts.Provider. API keys come from the
// same environment variables the completion providers read.
func New(ctx context.Context, opts Options) (Embedder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(opts.Provider)

	var (
		e   Embedder
		err error
	)
	switch provider {
	case "openai", "openrouter", "anthropic":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for embeddings with provider %q", provider)
		}
		e = newOpenAIEmbedder(apiKey, opts.BaseURL, OpenAIModel(opts.Model), logger)
	case "google":
		e, err = NewGoogleEmbedder(ctx, os.Getenv("GOOGLE_API_KEY"), GoogleModel(opts.Model))
	case "ollama":
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		e = newOllamaEmbedder(opts.Model, baseURL, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	if opts.MaxAttempts > 1 {
		e = withRetry(e, opts.MaxAttempts, opts.Backoff, logger)
	}
	logger.Debug("embedder ready", zap.String("embedder", e.Name()), zap.Int("dimensions", e.Dimensions()))
	return e, nil
}
