package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	log.With(Component("lifecycle")).Info("status changed",
		ApplicationID("app-1"),
		Status("Approved"),
		Int("attempt", 2),
		Duration("took", 1500*time.Millisecond),
		Err(nil),
	)
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "status changed", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "lifecycle", entry["component"])
	assert.Equal(t, "app-1", entry["application_id"])
	assert.Equal(t, "Approved", entry["status"])
	assert.EqualValues(t, 2, entry["attempt"])
	assert.Equal(t, "1.5s", entry["took"])
	assert.NotContains(t, entry, "error")
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Info("dropped")
	log.Debug("dropped")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	ctx := WithContext(context.Background(), log.With(RequestID("req-7")))
	FromContext(ctx).Info("hello")
	FromContext(context.Background()).Info("discarded")

	assert.Contains(t, buf.String(), `"request_id":"req-7"`)
	assert.NotContains(t, buf.String(), "discarded")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf, Format: FormatConsole}).Named("worker").Info("started", StudentID("s-1"))

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "worker")
	assert.Contains(t, line, `{"student_id": "s-1"}`)
}
