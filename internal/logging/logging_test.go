package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", "json", &buf)

	logger.Info("dropped")
	logger.With("component", "orchestrator").Warn("quota reached", "total", 3600)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "quota reached", entry["msg"])
	assert.Equal(t, "orchestrator", entry["component"])
	assert.Equal(t, float64(3600), entry["total"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New("debug", "text", &buf).Debug("page loaded", "url", "https://shop.test")

	assert.Contains(t, buf.String(), "msg=\"page loaded\"")
	assert.Contains(t, buf.String(), "url=https://shop.test")
}
