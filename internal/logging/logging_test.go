package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ember.log")

	logger, cleanup, err := Setup(Config{
		Level:         "info",
		FilePath:      path,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("segment_flushed", slog.Int("docs", 3))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "segment_flushed")
}

func TestSetupStderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "debug"})
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, logger)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, LevelFromString(in), in)
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, DefaultLogPath(), cfg.FilePath)
	require.True(t, cfg.WriteToStderr)
	require.Equal(t, "debug", DebugConfig().Level)
}
