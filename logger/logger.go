package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceIDKey is the context key carrying a request trace id.
const TraceIDKey = "trace_id"

// Log is the process-wide logger. It is a no-op until Init is called so that
// library code and tests can log unconditionally.
var Log = zap.NewNop()

// Init installs a JSON logger writing to stdout at the given level
// (debug, info, warn, error). Unknown levels fall back to info.
func Init(service, level string) {
	Log = New(service, level, zapcore.AddSync(os.Stdout))
}

// New builds a JSON logger writing to ws. Exposed for tests that capture output.
func New(service, level string, ws zapcore.WriteSyncer) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.MessageKey = "msg"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, lvl)
	return zap.New(core, zap.AddCaller()).With(zap.String("service", service))
}

// Named returns a child of Log for one component.
func Named(name string) *zap.Logger { return Log.Named(name) }

// Info logs at info level, adding the trace id found in ctx.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.WithOptions(zap.AddCallerSkip(1)).Info(msg, withTrace(ctx, fields)...)
}

// Warn logs at warn level, adding the trace id found in ctx.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.WithOptions(zap.AddCallerSkip(1)).Warn(msg, withTrace(ctx, fields)...)
}

// Error logs at error level, adding the trace id found in ctx.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.WithOptions(zap.AddCallerSkip(1)).Error(msg, withTrace(ctx, fields)...)
}

// Debug logs at debug level, adding the trace id found in ctx.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.WithOptions(zap.AddCallerSkip(1)).Debug(msg, withTrace(ctx, fields)...)
}

func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if id, ok := ctx.Value(TraceIDKey).(string); ok && id != "" {
		fields = append(fields, zap.String(TraceIDKey, id))
	}
	return fields
}

// Sync flushes buffered entries. Call it deferred from main.
func Sync() {
	_ = Log.Sync()
}
