// Package manifest persists the fingerprint manifest backing incremental
// indexing: which documents are indexed, under which content fingerprint,
// and which chunks each document produced.
package manifest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/docq/docq/internal/chunk"
	docqerrors "github.com/docq/docq/internal/errors"
)

// Fingerprint returns the content fingerprint for a document's extracted
// text. Change detection compares fingerprints only, never timestamps.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Entry is one document's manifest row.
type Entry struct {
	DocID       string
	Fingerprint string
	IndexedAt   time.Time
}

// Delta is the outcome of diffing the current document set against the
// manifest. All slices are sorted by document ID.
type Delta struct {
	Added     []string
	Changed   []string
	Removed   []string
	Unchanged []string
}

// Store is the SQLite-backed manifest.
type Store struct {
	db   *sql.DB
	path string
}

// validateIntegrity checks a SQLite file before opening it for writes so
// corruption surfaces as a typed error instead of a mid-run failure.
func validateIntegrity(path string) error {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open read-only: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Open opens (or creates) the manifest database at path.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		if err := validateIntegrity(path); err != nil {
			return nil, docqerrors.Wrapf(docqerrors.ErrCodeManifestCorrupt, err,
				"manifest database %s is corrupt", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	// Single connection: modernc.org/sqlite serializes writes anyway and
	// this avoids SQLITE_BUSY under concurrent statements.
	db.SetMaxOpenConns(1)

	// WAL must be set via PRAGMA; DSN params may be ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		doc_id      TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		indexed_at  TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id TEXT PRIMARY KEY,
		doc_id   TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		seq      INTEGER NOT NULL,
		text     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init manifest schema: %w", err)
	}
	return nil
}

// Diff compares the current fingerprint set (doc ID -> fingerprint)
// against the manifest and classifies every document.
func (s *Store) Diff(ctx context.Context, current map[string]string) (*Delta, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc_id, fingerprint FROM documents")
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	indexed := make(map[string]string)
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		indexed[id] = fp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	delta := &Delta{}
	for id, fp := range current {
		prev, ok := indexed[id]
		switch {
		case !ok:
			delta.Added = append(delta.Added, id)
		case prev != fp:
			delta.Changed = append(delta.Changed, id)
		default:
			delta.Unchanged = append(delta.Unchanged, id)
		}
	}
	for id := range indexed {
		if _, ok := current[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}

	sort.Strings(delta.Added)
	sort.Strings(delta.Changed)
	sort.Strings(delta.Removed)
	sort.Strings(delta.Unchanged)
	return delta, nil
}

// CommitDocument records a document's fingerprint and chunk set in one
// transaction, replacing whatever was there before. It runs after the
// vector upserts so a crash leaves at-least-once state, never lost
// documents.
func (s *Store) CommitDocument(ctx context.Context, docID, fingerprint string, chunks []chunk.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("clear document %s: %w", docID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO documents (doc_id, fingerprint, indexed_at) VALUES (?, ?, ?)",
		docID, fingerprint, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert document %s: %w", docID, err)
	}
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks (chunk_id, doc_id, seq, text) VALUES (?, ?, ?, ?)",
			c.ID, c.DocID, c.Seq, c.Text); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document %s: %w", docID, err)
	}
	return nil
}

// DeleteDocuments removes documents and their chunks from the manifest.
func (s *Store) DeleteDocuments(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range docIDs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// ChunkIDs returns the chunk IDs recorded for a document, ordered by
// sequence number.
func (s *Store) ChunkIDs(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chunk_id FROM chunks WHERE doc_id = ? ORDER BY seq", docID)
	if err != nil {
		return nil, fmt.Errorf("query chunks for %s: %w", docID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllChunkIDs returns every chunk ID the manifest knows about.
func (s *Store) AllChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id FROM chunks ORDER BY chunk_id")
	if err != nil {
		return nil, fmt.Errorf("query chunk ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HydratedChunk is a chunk with its text restored for retrieval output.
type HydratedChunk struct {
	ID    string
	DocID string
	Seq   int
	Text  string
}

// Hydrate loads chunk text and provenance for the given chunk IDs.
// Unknown IDs are omitted from the result.
func (s *Store) Hydrate(ctx context.Context, chunkIDs []string) (map[string]HydratedChunk, error) {
	out := make(map[string]HydratedChunk, len(chunkIDs))
	stmt, err := s.db.PrepareContext(ctx,
		"SELECT chunk_id, doc_id, seq, text FROM chunks WHERE chunk_id = ?")
	if err != nil {
		return nil, fmt.Errorf("prepare hydrate: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range chunkIDs {
		var hc HydratedChunk
		err := stmt.QueryRowContext(ctx, id).Scan(&hc.ID, &hc.DocID, &hc.Seq, &hc.Text)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate chunk %s: %w", id, err)
		}
		out[id] = hc
	}
	return out, nil
}

// Documents returns all manifest entries sorted by document ID.
func (s *Store) Documents(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_id, fingerprint, indexed_at FROM documents ORDER BY doc_id")
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.DocID, &e.Fingerprint, &e.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of indexed documents and chunks.
func (s *Store) Count(ctx context.Context) (docs, chunks int, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&docs); err != nil {
		return 0, 0, fmt.Errorf("count documents: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&chunks); err != nil {
		return 0, 0, fmt.Errorf("count chunks: %w", err)
	}
	return docs, chunks, nil
}

// GetState returns the value stored under key, or "" if absent.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores value under key, replacing any previous value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Reset wipes all manifest contents. Used by full rebuilds.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"chunks", "documents", "state"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}
