package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/s3mirror/pkg/logging"
)

func TestNewWithWriter_JSONDefault(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "", "")

	log.Info("hello", "repo", "octo/site")
	log.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "octo/site", entry["repo"])
}

func TestNewWithWriter_TextHasNoColourOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "text", "debug")

	log.Debug("reconciling", "records", 3)

	out := buf.String()
	assert.Contains(t, out, "reconciling")
	assert.Contains(t, out, "records=3")
	assert.NotContains(t, out, "\x1b[")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("nonsense"))
}
