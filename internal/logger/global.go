package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the process logger. Passing nil restores the
// console fallback on the next Global call.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the process logger. Before SetGlobal it is an info level
// console logger.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = consoleFallback()
	}
	return global
}

func consoleFallback() *CentralLogger {
	cfg := &LoggingConfig{
		DefaultLevel: DefaultLogLevel,
		Timezone:     "Local",
		Console:      &ConsoleOutput{Enabled: true, Level: DefaultLogLevel},
	}
	return &CentralLogger{
		config:   cfg,
		timezone: time.Local,
		base:     newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
		writers:  map[string]*BufferedFileWriter{},
		levels:   map[string]slog.Level{},
	}
}

type contextKey string

// TraceIDKey is the context key read by WithContext
const TraceIDKey contextKey = traceIDKey

// WithTraceID returns ctx carrying traceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}
