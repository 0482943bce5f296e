package vectordb

import "context"

// VectorStore stores knowledge chunks and searches them by embedding.
type VectorStore interface {
	// AddDocuments adds or replaces chunks by ID.
	AddDocuments(ctx context.Context, docs []Document) error

	// Search performs a semantic search using the query text.
	Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error)

	// GetBySource returns every chunk cut from the given source file.
	GetBySource(ctx context.Context, source string) ([]Document, error)

	// DeleteBySource removes every chunk cut from the given source file.
	DeleteBySource(ctx context.Context, source string) error

	// Persist saves the store's data to the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores the store's data from the given directory.
	Load(ctx context.Context, dir string) error

	// Count returns the total number of chunks in the store.
	Count() int
}
