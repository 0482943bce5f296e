package knowledge

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/walker"
)

// Watcher re-indexes knowledge sources as they change on disk.
type Watcher struct {
	ix       *Indexer
	fsw      *fsnotify.Watcher
	root     string
	log      *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher returns a Watcher for the indexer's knowledge directory.
func NewWatcher(ix *Indexer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		ix:       ix,
		fsw:      fsw,
		root:     ix.Root(),
		log:      ix.log.Named("watcher"),
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is cancelled. Rapid successive writes to one file
// are coalesced into a single re-index.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Info("watching knowledge directory", zap.String("dir", w.root))

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-tick.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && walker.IsExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
			return
		}
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	var settled []string
	w.mu.Lock()
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if err := w.sync(ctx, path); err != nil {
			w.log.Warn("re-index failed", zap.String("path", path), zap.Error(err))
		}
	}
}

// sync brings the index in line with the current state of path.
func (w *Watcher) sync(ctx context.Context, path string) error {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.log.Info("knowledge source removed", zap.String("source", rel))
		return w.ix.Remove(ctx, rel)
	}
	if err != nil {
		return err
	}

	fi, ok := walker.Accept(w.ix.cfg.Walk, rel, info.Size())
	if !ok {
		return nil
	}
	fi.Path = path
	if fi.ContentHash, err = walker.HashFile(path); err != nil {
		return err
	}

	n, changed, err := w.ix.IngestFile(ctx, fi)
	if err != nil || !changed {
		return err
	}
	w.log.Info("knowledge source re-indexed", zap.String("source", rel), zap.Int("chunks", n))
	return w.ix.persist(ctx)
}
