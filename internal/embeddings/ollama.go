package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/llm"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// ollamaDimensions lists widths of common embedding models. Other models
// report 0 until their first vector comes back.
var ollamaDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

type ollamaEmbedder struct {
	host       string
	model      string
	dimensions atomic.Int64
	client     *http.Client
	logger     *zap.Logger
}

func newOllamaEmbedder(model, host string, logger *zap.Logger) *ollamaEmbedder {
	if model == "" {
		model = defaultOllamaModel
	}
	if host == "" {
		host = defaultOllamaHost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &ollamaEmbedder{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{},
		logger: logger,
	}
	e.dimensions.Store(int64(ollamaDimensions[strings.SplitN(model, ":", 2)[0]]))
	return e
}

func (e *ollamaEmbedder) Name() string    { return "ollama/" + e.model }
func (e *ollamaEmbedder) Dimensions() int { return int(e.dimensions.Load()) }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed posts every text in one /api/embed call.
func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encoding ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &llm.StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	e.dimensions.CompareAndSwap(0, int64(len(result.Embeddings[0])))
	e.logger.Debug("embedded batch", zap.String("embedder", e.Name()), zap.Int("texts", len(texts)))
	return result.Embeddings, nil
}
