// Package walker finds knowledge-base source files under a directory.
package walker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the maximum file size to process (1 MB).
const DefaultMaxFileSize int64 = 1 << 20

// FileInfo holds metadata about a single knowledge source.
type FileInfo struct {
	Path        string // Absolute path on disk.
	RelPath     string // Slash-separated path relative to the root.
	Size        int64
	Format      Format
	Category    string // First directory below the root, empty for top-level files.
	ContentHash string // SHA-256 hex digest of the file content.
}

// WalkerConfig controls the behaviour of the Walk function.
type WalkerConfig struct {
	RootDir     string   // Root directory to walk.
	Include     []string // Glob patterns; only matching files are included.
	Exclude     []string // Glob patterns; matching files are excluded.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
}

// Walk traverses the tree rooted at config.RootDir and returns every
// readable text source that passes filtering. A .ignore file at the root
// adds exclude patterns.
func Walk(config WalkerConfig) ([]FileInfo, error) {
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("walker: %w", err)
	}

	ignored := loadIgnoreFile(filepath.Join(root, ".ignore"))

	var files []FileInfo

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Skip entries we cannot read instead of aborting.
			return nil
		}

		if d.IsDir() {
			if path != root && IsExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		info, err := d.Info()
		if err != nil {
			return nil
		}
		fi, ok := Accept(config, relPath, info.Size())
		if !ok || MatchesExclude(relPath, ignored) {
			return nil
		}

		hash, err := HashFile(path)
		if err != nil {
			return nil
		}
		fi.Path = path
		fi.ContentHash = hash
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walker: traversal: %w", err)
	}

	return files, nil
}

// Accept applies the format, size, and pattern filters to a single file and
// returns its partial FileInfo. It is shared by Walk and the file watcher.
func Accept(config WalkerConfig, relPath string, size int64) (FileInfo, bool) {
	relPath = filepath.ToSlash(relPath)
	for _, part := range strings.Split(relPath, "/") {
		if IsExcludedDir(part) {
			return FileInfo{}, false
		}
	}

	format := DetectFormat(relPath)
	if format == FormatUnknown {
		return FileInfo{}, false
	}
	if !MatchesInclude(relPath, config.Include) || MatchesExclude(relPath, config.Exclude) {
		return FileInfo{}, false
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if size > maxSize {
		return FileInfo{}, false
	}

	var category string
	if i := strings.IndexByte(relPath, '/'); i > 0 {
		category = relPath[:i]
	}

	return FileInfo{
		RelPath:  relPath,
		Size:     size,
		Format:   format,
		Category: category,
	}, true
}

// HashFile computes the SHA-256 digest of the given file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadIgnoreFile reads a file of glob patterns, one per line.
func loadIgnoreFile(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}
