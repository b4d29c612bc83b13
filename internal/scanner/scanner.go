// Package scanner discovers indexable documents under a docs directory.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docq/docq/internal/loader"
)

// DefaultMaxFileSize is the largest file the scanner will hand to an
// extractor. Larger files are skipped with a warning.
const DefaultMaxFileSize = 32 * 1024 * 1024

// Options controls a scan.
type Options struct {
	// RootDir is the docs directory to walk.
	RootDir string
	// Extensions restricts the scan to these extensions (with leading
	// dot). Empty means every extension the registry supports.
	Extensions []string
	// MaxFileSize caps accepted file size in bytes. Zero applies
	// DefaultMaxFileSize.
	MaxFileSize int64
}

// Scanner walks a directory tree and returns the documents an indexing
// run should consider.
type Scanner struct {
	registry *loader.Registry
	logger   *slog.Logger
}

// New creates a Scanner over the given extractor registry.
func New(registry *loader.Registry, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{registry: registry, logger: logger}
}

// Scan walks opts.RootDir and returns matching documents sorted by ID.
// Hidden directories and files (dot-prefixed) are skipped, as is
// anything without a registered extractor.
func (s *Scanner) Scan(ctx context.Context, opts Options) ([]loader.Document, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	allowed := map[string]bool{}
	for _, ext := range opts.Extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var docs []loader.Document
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if len(allowed) > 0 && !allowed[ext] {
			return nil
		}
		if !s.registry.Supports(ext) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if fi.Size() > maxSize {
			s.logger.Warn("skipping oversized file",
				"path", path, "size", fi.Size(), "max", maxSize)
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}

		docs = append(docs, loader.Document{
			ID:      filepath.ToSlash(rel),
			AbsPath: path,
			ModTime: fi.ModTime(),
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	s.logger.Debug("scan complete", "root", absRoot, "documents", len(docs))
	return docs, nil
}
