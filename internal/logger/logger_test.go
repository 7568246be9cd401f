package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_WritesStructuredFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, nil).Module("alerting")

	log.Info("alert triggered",
		String("rule", "High CPU"),
		Int("count", 2),
		Error(errors.New("boom")))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "alert triggered", record["msg"])
	assert.Equal(t, "alerting", record["module"])
	assert.Equal(t, "High CPU", record["rule"])
	assert.EqualValues(t, 2, record["count"])
	assert.Equal(t, "boom", record["error"])
}

func TestSlogLogger_RespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, nil)

	log.Debug("hidden")
	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSlogLogger_TimezoneConversion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tz := time.FixedZone("UTC+3", 3*60*60)
	NewSlogLogger(&buf, LogLevelInfo, tz).Info("tick")

	assert.Contains(t, buf.String(), "+03:00")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"WARNING", LogLevelWarn},
		{" error ", LogLevelError},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestErrorField_NilSafe(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Error(nil).Value)
}
