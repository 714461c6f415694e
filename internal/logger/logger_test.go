package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/temp-monitor/internal/config"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.Log{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Str("device", "d1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "d1", entry["device"])
	assert.Contains(t, entry, "time")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.Log{Level: "WARN"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.Log{Format: "console"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("readable")
	assert.Contains(t, buf.String(), "readable")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestInvalidSettings(t *testing.T) {
	_, err := NewWithWriter(config.Log{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter(config.Log{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New(config.Log{Output: "syslog"})
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "monitor.log")
	log, err := New(config.Log{Output: "file", File: path})
	require.NoError(t, err)

	log.Error().Msg("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
