package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docq/docq/internal/loader"
)

func setupDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "guides"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cache"), 0o755))

	files := map[string]string{
		"readme.md":          "# readme",
		"notes.txt":          "notes",
		"guides/install.md":  "install guide",
		"guides/photo.png":   "not text",
		".cache/stale.txt":   "hidden dir content",
		".hidden.txt":        "hidden file",
		"guides/.secret.txt": "hidden file in subdir",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newScanner(t *testing.T) *Scanner {
	t.Helper()
	return New(loader.DefaultRegistry(), nil)
}

func TestScan(t *testing.T) {
	// Given a docs tree with supported, unsupported and hidden files
	dir := setupDocs(t)

	// When scanning
	docs, err := newScanner(t).Scan(context.Background(), Options{RootDir: dir})

	// Then only supported, visible files are returned, sorted by ID
	require.NoError(t, err)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"guides/install.md", "notes.txt", "readme.md"}, ids)
}

func TestScan_ExtensionFilter(t *testing.T) {
	dir := setupDocs(t)

	docs, err := newScanner(t).Scan(context.Background(), Options{
		RootDir:    dir,
		Extensions: []string{".md"},
	})

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "guides/install.md", docs[0].ID)
	assert.Equal(t, "readme.md", docs[1].ID)
}

func TestScan_DocumentMetadata(t *testing.T) {
	dir := setupDocs(t)

	docs, err := newScanner(t).Scan(context.Background(), Options{
		RootDir:    dir,
		Extensions: []string{".txt"},
	})

	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, "notes.txt", doc.ID)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), doc.AbsPath)
	assert.Equal(t, int64(len("notes")), doc.Size)
	assert.False(t, doc.ModTime.IsZero())
}

func TestScan_MaxFileSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.txt"), []byte("ok"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), make([]byte, 1024), 0o644))

	docs, err := newScanner(t).Scan(context.Background(), Options{
		RootDir:     dir,
		MaxFileSize: 512,
	})

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "small.txt", docs[0].ID)
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := newScanner(t).Scan(context.Background(), Options{
		RootDir: filepath.Join(t.TempDir(), "absent"),
	})
	assert.Error(t, err)
}

func TestScan_RootIsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := newScanner(t).Scan(context.Background(), Options{RootDir: path})
	assert.ErrorContains(t, err, "not a directory")
}

func TestScan_Cancelled(t *testing.T) {
	dir := setupDocs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newScanner(t).Scan(ctx, Options{RootDir: dir})
	assert.ErrorIs(t, err, context.Canceled)
}
