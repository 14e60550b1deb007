package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Initialize(Config{Level: level, Format: "json", Output: buf, Service: "delivery-tracker"})
	t.Cleanup(func() { globalLogger = nil })
	return buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_FieldsAndCaller(t *testing.T) {
	buf := captureJSON(t, "debug")

	Info("Attempt updated", map[string]interface{}{"attempt_id": 7, "status": "en_route"})
	Error("SMS send failed", errors.New("provider down"), nil)

	entries := lines(t, buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "Attempt updated", entries[0]["message"])
	assert.Equal(t, float64(7), entries[0]["attempt_id"])
	assert.Equal(t, "en_route", entries[0]["status"])
	assert.Equal(t, "delivery-tracker", entries[0]["service"])
	assert.Contains(t, entries[0]["caller"], "logger_test.go")

	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "provider down", entries[1]["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := captureJSON(t, "warn")

	Debug("hidden")
	Info("hidden")
	Warn("shown")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["message"])
}

func TestLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	buf := captureJSON(t, "verbose")

	Debug("hidden")
	Info("shown")

	assert.Len(t, lines(t, buf), 1)
}

func TestLogger_WithContext(t *testing.T) {
	buf := captureJSON(t, "info")

	scoped := WithContext(map[string]interface{}{"request_id": "req-1"})
	scoped.Warn("Request rejected", map[string]interface{}{"status": 403})

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, float64(403), entries[0]["status"])
	assert.Contains(t, entries[0]["caller"], "logger_test.go")
}
