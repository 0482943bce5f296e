package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/equaliser/intake-agent/internal/vectordb"
)

// Retriever answers educate-mode lookups from a vector store.
type Retriever struct {
	store         vectordb.VectorStore
	minSimilarity float32
}

// NewRetriever returns a Retriever over store. Results scoring below
// minSimilarity are dropped; zero keeps everything.
func NewRetriever(store vectordb.VectorStore, minSimilarity float32) *Retriever {
	return &Retriever{store: store, minSimilarity: minSimilarity}
}

// Retrieve returns up to topK chunks for query, each prefixed with its
// source label.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	results, err := r.Search(ctx, query, topK, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for i, res := range results {
		out[i] = vectordb.Cite(res.Document)
	}
	return out, nil
}

// Search returns the raw scored results for query.
func (r *Retriever) Search(ctx context.Context, query string, topK int, filter *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	if r.store.Count() == 0 {
		return nil, nil
	}
	results, err := r.store.Search(ctx, query, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	kept := results[:0]
	for _, res := range results {
		if res.Similarity >= r.minSimilarity {
			kept = append(kept, res)
		}
	}
	return kept, nil
}

// JoinContext joins retrieved chunks into one grounding block.
func JoinContext(chunks []string) string {
	return strings.Join(chunks, "\n\n")
}
