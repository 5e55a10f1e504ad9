package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNew_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	fanLog := WithComponent(logger, "recall.fanout")
	fanLog.Warn().Str("source", "graph").Msg("source failed")
	out := buf.String()
	assert.Contains(t, out, `"component":"recall.fanout"`)
	assert.Contains(t, out, `"source":"graph"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "console", Output: &buf})
	logger.Info().Msg("ready")
	assert.Contains(t, buf.String(), "ready")
	assert.NotContains(t, buf.String(), `"message"`)
}
