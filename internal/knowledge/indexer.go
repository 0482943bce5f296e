// Package knowledge builds and queries the legal-information knowledge base
// used to ground educate-mode replies.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/equaliser/intake-agent/internal/embeddings"
	"github.com/equaliser/intake-agent/internal/progress"
	"github.com/equaliser/intake-agent/internal/vectordb"
	"github.com/equaliser/intake-agent/internal/walker"
)

// IndexerConfig configures an Indexer.
type IndexerConfig struct {
	Walk         walker.WalkerConfig
	ChunkSize    int
	ChunkOverlap int
	Concurrency  int
	// PersistDir, when set, receives the index after every change.
	PersistDir string
	Reporter   progress.Reporter
	Logger     *zap.Logger
}

// Indexer keeps a vector store in step with a directory of knowledge sources.
type Indexer struct {
	store vectordb.VectorStore
	cfg   IndexerConfig
	log   *zap.Logger
	now   func() time.Time

	persistMu sync.Mutex
}

// Stats summarises an ingest run.
type Stats struct {
	Files     int
	Indexed   int
	Unchanged int
	Failed    int
	Chunks    int
}

// NewIndexer returns an Indexer writing to store.
func NewIndexer(store vectordb.VectorStore, cfg IndexerConfig) *Indexer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Reporter == nil {
		cfg.Reporter = progress.Nop{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{store: store, cfg: cfg, log: log, now: time.Now}
}

// Root returns the absolute knowledge directory.
func (ix *Indexer) Root() string {
	root, err := filepath.Abs(ix.cfg.Walk.RootDir)
	if err != nil {
		return ix.cfg.Walk.RootDir
	}
	return root
}

// Ingest walks the knowledge directory and indexes every new or changed
// source. A failure on one file is logged and counted; the run continues.
func (ix *Indexer) Ingest(ctx context.Context) (Stats, error) {
	files, err := walker.Walk(ix.cfg.Walk)
	if err != nil {
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		stats = Stats{Files: len(files)}
		done  int
	)
	ix.cfg.Reporter.Start(len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)
	for _, f := range files {
		g.Go(func() error {
			n, changed, err := ix.IngestFile(gctx, f)

			mu.Lock()
			defer mu.Unlock()
			done++
			ix.cfg.Reporter.Update(done, f.RelPath)
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				stats.Failed++
				ix.log.Warn("index source failed", zap.String("source", f.RelPath), zap.Error(err))
			case changed:
				stats.Indexed++
				stats.Chunks += n
			default:
				stats.Unchanged++
			}
			return nil
		})
	}
	err = g.Wait()
	ix.cfg.Reporter.Finish()
	if err != nil {
		return stats, err
	}

	if stats.Indexed > 0 {
		if err := ix.persist(ctx); err != nil {
			return stats, err
		}
	}
	ix.log.Info("knowledge ingest finished",
		zap.Int("files", stats.Files),
		zap.Int("indexed", stats.Indexed),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("failed", stats.Failed),
		zap.Int("chunks", stats.Chunks))
	return stats, nil
}

// IngestFile indexes one source, replacing any chunks previously cut from
// it. It returns the number of chunks written and whether the source changed.
func (ix *Indexer) IngestFile(ctx context.Context, f walker.FileInfo) (int, bool, error) {
	existing, err := ix.store.GetBySource(ctx, f.RelPath)
	if err != nil {
		return 0, false, err
	}
	if len(existing) > 0 && existing[0].Metadata.ContentHash == f.ContentHash {
		return 0, false, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", f.RelPath, err)
	}
	text := string(data)
	if f.Format == walker.FormatHTML {
		if text, err = htmlToMarkdown(text); err != nil {
			return 0, false, fmt.Errorf("parse %s: %w", f.RelPath, err)
		}
	}

	title, chunks := Split(text, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if title == "" {
		title = titleFromPath(f.RelPath)
	}

	docs := make([]vectordb.Document, len(chunks))
	now := ix.now()
	for i, c := range chunks {
		docs[i] = vectordb.Document{
			ID:      fmt.Sprintf("%s#%d", f.RelPath, i),
			Content: c.Text,
			Metadata: vectordb.DocumentMetadata{
				Source:      f.RelPath,
				Title:       title,
				Heading:     c.Heading,
				ChunkIndex:  i,
				ContentHash: f.ContentHash,
				Type:        documentType(f.Category),
				LastUpdated: now,
			},
		}
	}

	if len(existing) > 0 {
		if err := ix.store.DeleteBySource(ctx, f.RelPath); err != nil {
			return 0, false, err
		}
	}
	if err := ix.store.AddDocuments(ctx, docs); err != nil {
		return 0, false, fmt.Errorf("index %s: %w", f.RelPath, err)
	}
	ix.log.Debug("indexed source", zap.String("source", f.RelPath), zap.Int("chunks", len(docs)))
	return len(docs), true, nil
}

// Remove drops every chunk cut from relPath.
func (ix *Indexer) Remove(ctx context.Context, relPath string) error {
	if err := ix.store.DeleteBySource(ctx, filepath.ToSlash(relPath)); err != nil {
		return err
	}
	return ix.persist(ctx)
}

func (ix *Indexer) persist(ctx context.Context) error {
	if ix.cfg.PersistDir == "" {
		return nil
	}
	ix.persistMu.Lock()
	defer ix.persistMu.Unlock()
	if err := ix.store.Persist(ctx, ix.cfg.PersistDir); err != nil {
		return fmt.Errorf("persist knowledge index: %w", err)
	}
	return nil
}

// documentType maps the top-level knowledge directory onto a document type.
func documentType(category string) vectordb.DocumentType {
	switch strings.ToLower(category) {
	case "services", "support":
		return vectordb.DocTypeService
	case "faq", "faqs":
		return vectordb.DocTypeFAQ
	case "legislation", "acts":
		return vectordb.DocTypeLegislation
	default:
		return vectordb.DocTypeGuide
	}
}

func titleFromPath(rel string) string {
	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	if base == "" {
		return rel
	}
	return strings.ToUpper(base[:1]) + base[1:]
}

// OpenStore returns a chromem-backed store, loading a previously persisted
// index from dir when one exists.
func OpenStore(ctx context.Context, embedder embeddings.Embedder, dir string, concurrency int) (*vectordb.ChromemStore, error) {
	store, err := vectordb.NewChromemStore(embedder, concurrency)
	if err != nil {
		return nil, err
	}
	if dir == "" || !vectordb.IndexExists(dir) {
		return store, nil
	}
	if err := store.Load(ctx, dir); err != nil {
		return nil, err
	}
	return store, nil
}
