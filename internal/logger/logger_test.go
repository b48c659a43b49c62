package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/gridnode/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	h, closer := Setup(config.LogConfig{File: path, Level: "debug"})
	lg := slog.New(h)
	lg.Debug("hello from test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestSetupStderrFallback(t *testing.T) {
	h, closer := Setup(config.LogConfig{})
	require.NotNil(t, h)
	require.NoError(t, closer.Close())
	// default level is info: debug suppressed
	assert.False(t, h.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, h.Enabled(t.Context(), slog.LevelInfo))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
