package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"pdf-vision-extractor/internal/domain"

	"github.com/rs/zerolog"
)

// AppLogger implements the domain.Logger interface on top of zerolog
type AppLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a new logger instance writing to stdout.
// format is "json" or "console".
func NewLogger(levelStr, format string) domain.Logger {
	return NewLoggerWithWriter(levelStr, format, os.Stdout)
}

// NewLoggerWithWriter creates a logger writing to out
func NewLoggerWithWriter(levelStr, format string, out io.Writer) domain.Logger {
	var zl zerolog.Logger
	if strings.EqualFold(format, "console") {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		zl = zerolog.New(out)
	}

	zl = zl.Level(parseLogLevel(levelStr)).With().
		Timestamp().
		Str("service", "pdf-vision-extractor").
		Logger()

	return &AppLogger{zl: zl}
}

// Info logs an info message
func (l *AppLogger) Info(msg string, fields ...interface{}) {
	l.zl.Info().Fields(toFields(fields)).Msg(msg)
}

// Error logs an error message
func (l *AppLogger) Error(msg string, err error, fields ...interface{}) {
	l.zl.Error().Err(err).Fields(toFields(fields)).Msg(msg)
}

// Debug logs a debug message
func (l *AppLogger) Debug(msg string, fields ...interface{}) {
	l.zl.Debug().Fields(toFields(fields)).Msg(msg)
}

// Warn logs a warning message
func (l *AppLogger) Warn(msg string, fields ...interface{}) {
	l.zl.Warn().Fields(toFields(fields)).Msg(msg)
}

// toFields turns alternating key/value pairs into a zerolog field map.
// A trailing key without a value is dropped.
func toFields(fields []interface{}) map[string]interface{} {
	if len(fields) < 2 {
		return nil
	}
	out := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, isErr := fields[i+1].(error); isErr && err != nil {
			out[key] = err.Error()
			continue
		}
		out[key] = fields[i+1]
	}
	return out
}

// parseLogLevel converts string log level to a zerolog level
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
