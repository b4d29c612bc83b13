package loader

import (
	"context"
	"os"
	"strings"
)

// PlainText reads text files as-is, normalizing line endings so that
// fingerprints are stable across checkouts.
type PlainText struct{}

// Ensure PlainText implements the interface.
var _ Extractor = (*PlainText)(nil)

// NewPlainText creates a plain text extractor.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Extensions returns the extensions handled by this extractor.
func (e *PlainText) Extensions() []string {
	return []string{".txt", ".text", ".log", ".rst"}
}

// Extract reads the file and normalizes CRLF to LF.
func (e *PlainText) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}
