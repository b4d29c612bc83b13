// Package chunk splits document text into overlapping fixed-size
// segments, the unit of embedding and retrieval.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk is a bounded text segment derived from one document.
type Chunk struct {
	// ID is content-addressed: identical document identity, position and
	// text always produce the same ID across runs.
	ID string
	// DocID is the owning document identity.
	DocID string
	// Seq is the 0-based sequence index within the document.
	Seq int
	// Text is the chunk content.
	Text string
}

// Splitter produces deterministic overlapping chunks. It is a pure
// function of its configuration and input: identical text and settings
// always yield identical boundaries, which fingerprint-based change
// detection depends on.
type Splitter struct {
	size    int
	overlap int
	min     int
}

// NewSplitter creates a Splitter. size is the target chunk length in
// runes, overlap the number of runes shared by adjacent chunks, and min
// the smallest allowed final chunk: a shorter tail is merged into the
// preceding chunk unless it is the document's only chunk. Callers are
// expected to validate overlap < size via config.Validate.
func NewSplitter(size, overlap, min int) *Splitter {
	return &Splitter{size: size, overlap: overlap, min: min}
}

// Split chunks text belonging to the document identified by docID.
// Empty or whitespace-only handling is the caller's concern; empty text
// yields no chunks.
func (s *Splitter) Split(docID, text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	spans := s.spans(len(runes))

	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		body := string(runes[sp.start:sp.end])
		chunks = append(chunks, Chunk{
			ID:    ChunkID(docID, i, body),
			DocID: docID,
			Seq:   i,
			Text:  body,
		})
	}
	return chunks
}

type span struct {
	start, end int
}

// spans computes chunk boundaries over n runes. Boundaries are contiguous
// and ordered; each chunk starts overlap runes before the previous end.
func (s *Splitter) spans(n int) []span {
	step := s.size - s.overlap

	var spans []span
	for start := 0; start < n; start += step {
		end := start + s.size
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		spans = append(spans, span{start, end})
	}

	// A final chunk below the minimum folds into its predecessor. The new
	// text of the last span starts at a step boundary, so the merged text
	// never exceeds size+min runes.
	if len(spans) > 1 {
		last := spans[len(spans)-1]
		if last.end-last.start < s.min {
			spans[len(spans)-2].end = last.end
			spans = spans[:len(spans)-1]
		}
	}

	return spans
}

// ChunkID derives the content-addressed chunk identity from the document
// identity, sequence index and chunk text.
func ChunkID(docID string, seq int, text string) string {
	h := sha256.New()
	h.Write([]byte(docID))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%d", seq)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
