package logger_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("WARNING"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("warn"))
	assert.Equal(t, logger.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, logger.InfoLevel, logger.ParseLevel(""))
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.DebugLevel)

	logger.ErrorWithCode(errors.New().New(errors.ErrTransport)).Str("source", "test").Msg("poll failed")

	out := buf.String()
	assert.Contains(t, out, `"error_code":"transport_failed"`)
	assert.Contains(t, out, `"source":"test"`)
	assert.Contains(t, out, `"poll failed"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.WarnLevel)
	defer logger.SetLogLevel(logger.DebugLevel)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "energymon.log")

	closer := logger.InitWithFile("info", true, logger.FileConfig{Path: path, MaxSizeMB: 1})
	logger.Info().Str("source", "modbus/Lab").Msg("written to file")
	logger.Debug().Msg("below level")
	require.NoError(t, closer.Close())
	logger.InitWriter(io.Discard, logger.InfoLevel)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"written to file"`)
	assert.Contains(t, string(data), `"source":"modbus/Lab"`)
	assert.NotContains(t, string(data), "below level")
}
