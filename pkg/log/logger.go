// Package log provides structured logging for clustergam on top of zerolog,
// with an slog bridge for callers that already standardize on log/slog.
package log

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/rs/zerolog"

	gamerr "github.com/neurogo/clustergam/pkg/errors"
)

var (
	loggerMu sync.RWMutex
	logger   = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
)

// Setup configures the package logger at the given level ("debug", "info",
// "warn", "error") and routes model warnings raised through pkg/errors into
// the same sink.
func Setup(level string) {
	loggerMu.Lock()
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(toZerologLevel(level))
	loggerMu.Unlock()

	gamerr.SetZerologWarnFunc(func(warning error) {
		ev := Logger().Warn()
		if m, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev.Object("warning", m).Msg("model warning")
			return
		}
		ev.Err(warning).Msg("model warning")
	})
}

// SetOutput replaces the logger's writer. Used by tests to capture output.
func SetOutput(l zerolog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// Logger returns the package logger.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := logger
	return &l
}

func toZerologLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		panic(fmt.Sprintf("invalid log level: %s", level))
	}
}

// SetupSlog installs a JSON slog default logger whose records carry
// stacktraces extracted from cockroachdb/errors values. Meant for services
// embedding clustergam that log through log/slog rather than zerolog.
func SetupSlog(level string) {
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     toSlogLevel(level),
	}
	handler := slog.NewJSONHandler(os.Stdout, &ops)
	slog.SetDefault(slog.New(WrapByErrFmtHandler(handler)))
}

func toSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		panic(fmt.Sprintf("invalid log level: %s", level))
	}
}
