package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json output carries service and version", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, Options{Level: "info", JSON: true, Service: "certreg", Version: "1.2.3"})

		log.Info("hello", "id", 7)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "certreg", record["service"])
		assert.Equal(t, "1.2.3", record["version"])
		assert.EqualValues(t, 7, record["id"])
	})

	t.Run("level filters lower records", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, Options{Level: "warn"})

		log.Info("dropped")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("instance id is attached when requested", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, Options{JSON: true, InstanceID: true})

		log.Info("tagged")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.NotEmpty(t, record["uid"])
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
