// Package loader extracts plain text from source documents.
//
// Each supported format implements the Extractor interface and is
// registered with a Registry keyed on file extension. The engine only
// ever sees extracted text; format details stay behind this boundary.
package loader

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Document identifies a source document supplied to an indexing run.
// The engine reads it; ownership stays with the ingestion boundary.
type Document struct {
	// ID is the stable document identity (path relative to the docs root).
	ID string
	// AbsPath is the absolute filesystem path.
	AbsPath string
	// ModTime is the source modification timestamp. Informational only;
	// change detection always uses content fingerprints.
	ModTime time.Time
	// Size is the file size in bytes.
	Size int64
}

// Extractor extracts plain text from one document format.
type Extractor interface {
	// Extensions returns the lower-case file extensions this extractor
	// handles, including the leading dot.
	Extensions() []string

	// Extract returns the document's text content.
	Extract(ctx context.Context, path string) (string, error)
}

// Registry selects an Extractor by file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry creates a registry over the given extractors. Later
// extractors win on extension conflicts.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// DefaultRegistry returns a registry covering plain text, Markdown and PDF.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewPlainText(),
		NewMarkdown(),
		NewPDF(),
	)
}

// Supports reports whether the registry has an extractor for ext.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[strings.ToLower(ext)]
	return ok
}

// ExtractText extracts the text of doc using the extractor registered
// for its extension.
func (r *Registry) ExtractText(ctx context.Context, doc Document) (string, error) {
	ext := strings.ToLower(extOf(doc.ID))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("no extractor registered for %q (document %s)", ext, doc.ID)
	}
	text, err := e.Extract(ctx, doc.AbsPath)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", doc.ID, err)
	}
	return text, nil
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}
