package surf

import (
	"log/slog"
	"os"

	"github.com/booknouse/go-surf/internal/common"
)

// DefaultLogger adapts log/slog to the Logger interface, emitting structured
// JSON on stderr. The filter logs only while building; file loading and
// queries never log.
type DefaultLogger struct {
	sl *slog.Logger
}

// NewDefaultLogger creates a JSON logger at info level.
func NewDefaultLogger() common.Logger {
	return NewDefaultLoggerWithLevel(common.LogLevelInfo)
}

// NewDefaultLoggerWithLevel creates a JSON logger with a minimum level.
func NewDefaultLoggerWithLevel(level common.LogLevel) common.Logger {
	return &DefaultLogger{
		sl: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevel(level),
		})),
	}
}

func slogLevel(level common.LogLevel) slog.Level {
	switch level {
	case common.LogLevelDebug:
		return slog.LevelDebug
	case common.LogLevelWarn:
		return slog.LevelWarn
	case common.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs a debug message with key-value fields.
func (l *DefaultLogger) Debug(msg string, fields ...interface{}) { l.sl.Debug(msg, fields...) }

// Info logs an info message with key-value fields.
func (l *DefaultLogger) Info(msg string, fields ...interface{}) { l.sl.Info(msg, fields...) }

// Warn logs a warning message with key-value fields.
func (l *DefaultLogger) Warn(msg string, fields ...interface{}) { l.sl.Warn(msg, fields...) }

// Error logs an error message with key-value fields.
func (l *DefaultLogger) Error(msg string, fields ...interface{}) { l.sl.Error(msg, fields...) }

// NullLogger is a logger that discards all log messages.
type NullLogger = common.NullLogger

// NewNullLogger creates a logger that discards all messages.
func NewNullLogger() common.Logger {
	return common.NewNullLogger()
}
