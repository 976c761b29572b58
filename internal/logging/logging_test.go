package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"  debug  ", zerolog.DebugLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: FormatJSON}, &buf)

	log.Info().Str("agent", "shipping").Msg("selected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "selected", entry["message"])
	assert.Equal(t, "shipping", entry["agent"])
	assert.NotEmpty(t, entry["time"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: FormatJSON}, &buf)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestOpenWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "switchboard.log")

	log, closer, err := Open(Config{Level: "debug", Format: FormatJSON, File: path}, true)
	require.NoError(t, err)
	require.NotNil(t, closer)

	log.Info().Str("session", "s1").Msg("turn started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "turn started", entry["message"])
	assert.Equal(t, "s1", entry["session"])
}

func TestOpenQuietWithoutFile(t *testing.T) {
	log, closer, err := Open(Config{Level: "info"}, true)
	require.NoError(t, err)
	assert.Nil(t, closer)

	// Disabled logger: events are discarded without panicking.
	log.Info().Msg("nobody hears this")
	assert.Equal(t, zerolog.Disabled, log.GetLevel())
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(Config{Level: "debug", Format: FormatJSON}, &buf))
	t.Cleanup(func() { SetDefault(prev) })

	log := Component("topic")
	log.Debug().Msg("checking divergence")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "topic", entry["component"])
}
