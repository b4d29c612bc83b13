package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestSetup_FileLogging(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "docq.log")

	logger, cleanup, err := Setup(Config{
		Level:    "debug",
		FilePath: logPath,
	})
	require.NoError(t, err)

	logger.Info("index_run_complete", slog.Int("documents", 3))
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "index_run_complete")
	assert.Contains(t, string(data), `"documents":3`)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "docq.log")

	// 1MB max with 2 rotated files kept.
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := strings.Repeat("x", 64*1024)
	for i := 0; i < 40; i++ {
		_, err := w.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	// Rotation happened at least once.
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)

	// Never more than maxFiles rotated files.
	matches, err := filepath.Glob(logPath + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}
