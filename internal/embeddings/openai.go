package embeddings

import (
	"context"
	"fmt"
	"slices"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIBatchSize keeps each request well under the API's input limit.
const openAIBatchSize = 100

// OpenAIModel is an OpenAI embedding model.
type OpenAIModel string

const (
	ModelTextEmbedding3Small OpenAIModel = "text-embedding-3-small"
	ModelTextEmbedding3Large OpenAIModel = "text-embedding-3-large"
)

func (m OpenAIModel) dimensions() int {
	if m == ModelTextEmbedding3Large {
		return 3072
	}
	return 1536
}

type openAIEmbedder struct {
	client *openai.Client
	model  OpenAIModel
	logger *zap.Logger
}

func newOpenAIEmbedder(apiKey, baseURL string, model OpenAIModel, logger *zap.Logger) *openAIEmbedder {
	if model == "" {
		model = ModelTextEmbedding3Small
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (e *openAIEmbedder) Name() string    { return string(e.model) }
func (e *openAIEmbedder) Dimensions() int { return e.model.dimensions() }

// Embed sends texts in batches. A failed batch fails the whole call; the
// go-openai error is kept so llm.Retryable can classify it.
func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for batch := range slices.Chunk(texts, openAIBatchSize) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
		e.logger.Debug("embedded batch",
			zap.String("embedder", e.Name()),
			zap.Int("texts", len(batch)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		)
	}
	return out, nil
}
