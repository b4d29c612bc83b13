package loader

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external command and returns its stdout.
// It exists so tests can substitute the pdftotext binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDF extracts text from PDF files by shelling out to pdftotext.
// The binary ships with poppler-utils and is widely available; there is
// no dependency-free way to parse PDFs reliably in-process.
type PDF struct {
	runner CommandRunner
}

var _ Extractor = (*PDF)(nil)

// NewPDF creates a PDF extractor using the system pdftotext binary.
func NewPDF() *PDF {
	return &PDF{runner: execRunner{}}
}

// NewPDFWithRunner creates a PDF extractor with a custom command runner.
func NewPDFWithRunner(runner CommandRunner) *PDF {
	return &PDF{runner: runner}
}

// Extensions returns the extensions handled by this extractor.
func (e *PDF) Extensions() []string {
	return []string{".pdf"}
}

// Extract runs pdftotext and returns its output with normalized newlines.
func (e *PDF) Extract(ctx context.Context, path string) (string, error) {
	out, err := e.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w", path, err)
	}
	text := strings.ReplaceAll(string(out), "\r\n", "\n")
	// pdftotext separates pages with form feeds.
	text = strings.ReplaceAll(text, "\f", "\n")
	return text, nil
}
