package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)

	log.Debug("hidden")
	log.Info("claim committed", "agreement", "abc", "request_id", "")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "claim committed")
	assert.Contains(t, out, "agreement=abc")
	assert.NotContains(t, out, "request_id", "empty attributes are dropped")
}

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 45, 123_456_789, time.FixedZone("X", 3600))
	assert.Equal(t, "2026-03-01T11:30:45.123Z", formatRFC3339Millis(ts))
}
