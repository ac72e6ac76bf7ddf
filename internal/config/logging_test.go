package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("batch saved", "offset", 20)

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "batch saved")

	var line map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &line))
	assert.Equal(t, "batch saved", line["msg"])
	assert.Equal(t, float64(20), line["offset"])
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricecat.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestSetupLoggerFallsBackToStderr(t *testing.T) {
	logger, cleanup := SetupLogger(filepath.Join(t.TempDir(), "missing", "x.log"), slog.LevelInfo)
	require.NotNil(t, logger)
	assert.NoError(t, cleanup())
}
