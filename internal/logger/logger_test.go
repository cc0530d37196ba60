package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
		ok   bool
	}{
		{"debug", logrus.DebugLevel, true},
		{"INFO", logrus.InfoLevel, true},
		{"", logrus.InfoLevel, true},
		{"warning", logrus.WarnLevel, true},
		{"warn", logrus.WarnLevel, true},
		{"error", logrus.ErrorLevel, true},
		{"verbose", logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json").WithField("run_id", "run-1")
	l.Debug("hidden")
	l.WithField("deltas", 3).Info("window reconciled")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "window reconciled", rec["msg"])
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.InDelta(t, 3, rec["deltas"], 0)
	assert.True(t, strings.HasSuffix(rec["time"].(string), "Z"), "timestamps are UTC: %v", rec["time"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "text").WithField("stage", "match").Debug("stage finished")
	assert.Contains(t, buf.String(), `msg="stage finished"`)
	assert.Contains(t, buf.String(), "stage=match")
}

func TestNew_InvalidLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "loud", "text")
	assert.Contains(t, buf.String(), "invalid log level")
	assert.Contains(t, buf.String(), "configured=loud")
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard()
	ctx := ToContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.Same(t, logrus.StandardLogger(), FromContext(context.Background()).Logger)
}
