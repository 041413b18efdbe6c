package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := Log
	Log = New("feed-test", level, zapcore.AddSync(buf))
	t.Cleanup(func() { Log = prev })
	return buf
}

func TestInfo_WithTraceID(t *testing.T) {
	buf := capture(t, "info")

	ctx := context.WithValue(context.Background(), TraceIDKey, "trace-42")
	Info(ctx, "history fetched", zap.String("symbol", "NASDAQ:AAPL"), zap.Int("bars", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "history fetched", entry["msg"])
	assert.Equal(t, "NASDAQ:AAPL", entry["symbol"])
	assert.Equal(t, float64(3), entry["bars"])
	assert.Equal(t, "feed-test", entry["service"])
	assert.Equal(t, "trace-42", entry["trace_id"])
}

func TestError_NoTraceID(t *testing.T) {
	buf := capture(t, "info")

	Error(context.Background(), "socket closed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, exists := entry["trace_id"]
	assert.False(t, exists)
	assert.Equal(t, "ERROR", entry["level"])
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t, "warn")

	Debug(context.Background(), "frame")
	Info(context.Background(), "poll")
	assert.Zero(t, buf.Len())

	Warn(context.Background(), "retry")
	assert.NotZero(t, buf.Len())
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	buf := capture(t, "loud")

	Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
	Info(context.Background(), "shown")
	assert.NotZero(t, buf.Len())
}
