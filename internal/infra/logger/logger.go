// Package logger is the centralized zap wrapper every chat-core
// component logs through — the event client's reconnect/backoff loop,
// submux's pool growth and throttled subscribe sends, the image cache's
// fetch failures, the lifecycle manager's start/stop trace, all funnel
// through here rather than each owning its own *zap.Logger. SetWriters
// lets the console's stdout/stderr be redirected onto pr's readline
// buffers once readline takes over the terminal, without the
// background goroutines above needing to know that happened. Uses
// zap.AtomicLevel for dynamic level changes and a mutex for thread
// safety around the writer swap.

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// mu guards the global logger state from concurrent mutation.
	mu sync.Mutex
	// log holds the current zap.Logger instance used across the application.
	log *zap.Logger
	// logLevel controls the dynamic log level without rebuilding the core.
	logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	// encoderCfg holds the message formatting settings, refreshed on Init.
	encoderCfg = defaultEncoderConfig()
	// stdoutWriter is the stream standard log output is written to.
	stdoutWriter = zapcore.Lock(zapcore.AddSync(os.Stdout))
	// stderrWriter receives zap's own internal errors (zap.ErrorOutput);
	// log entries of every level go to stdoutWriter.
	stderrWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
	// fileWriter is an optional rotating file sink, set by EnableFileSink.
	// Nil until then, meaning only stdoutWriter receives log entries.
	fileWriter zapcore.WriteSyncer
)

// defaultEncoderConfig builds a console encoder with colors and a short
// caller. The time format is fixed (YYYY-MM-DD HH:MM:SS). Switch to a
// JSON encoder for machine consumption.
func defaultEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// rebuildLoggerLocked rebuilds the global logger with the current stream
// and level settings. Callers must already hold mu. AddCallerSkip(1) hides
// the logger.* wrapper frames from the call stack. The previous logger is
// Sync()'d before being replaced so its buffers are flushed.
func rebuildLoggerLocked() {
	encoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(encoder, stdoutWriter, logLevel)
	if fileWriter != nil {
		core = zapcore.NewTee(core, zapcore.NewCore(encoder, fileWriter, logLevel))
	}
	if log != nil {
		_ = log.Sync()
	}
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.ErrorOutput(stderrWriter))
}

// EnableFileSink adds a rotating file sink alongside stdout/stderr, via
// lumberjack. The chat client runs unattended for long stretches, so
// logs are kept on disk rather than only in the terminal scrollback.
// maxSizeMB/maxBackups/maxAgeDays follow lumberjack.Logger's own fields;
// zero values fall back to its defaults.
func EnableFileSink(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	mu.Lock()
	defer mu.Unlock()

	fileWriter = zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	})
	rebuildLoggerLocked()
}

// Init initializes the global zap logger and sets the level. Valid levels:
// debug, info (default), warn, error, compared case-insensitively. The
// encoder comes from defaultEncoderConfig. Thread-safe.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(level) {
	case "debug":
		logLevel.SetLevel(zap.DebugLevel)
	case "warn":
		logLevel.SetLevel(zap.WarnLevel)
	case "error":
		logLevel.SetLevel(zap.ErrorLevel)
	default:
		logLevel.SetLevel(zap.InfoLevel)
	}

	encoderCfg = defaultEncoderConfig()
	rebuildLoggerLocked()
}

// SetWriters reassigns the logger's target streams and rebuilds the core.
// Safe to call at runtime (e.g. to redirect output into the CLI console).
// A nil argument means stdout/stderr respectively. Thread-safe.
func SetWriters(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if stdout == nil {
		stdoutWriter = zapcore.Lock(zapcore.AddSync(os.Stdout))
	} else {
		stdoutWriter = zapcore.Lock(zapcore.AddSync(stdout))
	}
	if stderr == nil {
		stderrWriter = zapcore.Lock(zapcore.AddSync(os.Stderr))
	} else {
		stderrWriter = zapcore.Lock(zapcore.AddSync(stderr))
	}

	rebuildLoggerLocked()
}

// Logger returns the current zap.Logger, lazily building it on first use.
// Returns the raw API (not Sugared); prefer passing structured zap.Field.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if log == nil {
		rebuildLoggerLocked()
	}
	return log
}

// IsDebugEnabled reports whether debug-level logging is currently enabled.
func IsDebugEnabled() bool {
	return Logger().Level() <= zap.DebugLevel
}

// Debug logs a structured message at Debug level.
func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }

// Info logs a structured message at Info level.
func Info(msg string, fields ...zap.Field) { Logger().Info(msg, fields...) }

// Warn logs a structured message at Warn level.
func Warn(msg string, fields ...zap.Field) { Logger().Warn(msg, fields...) }

// Error logs a structured message at Error level.
func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }

// Fatal logs a structured message at Fatal level and terminates the
// process.
func Fatal(msg string, fields ...zap.Field) {
	Logger().Fatal(msg, fields...)
	_ = Logger().Sync() // flush buffers before os.Exit
	os.Exit(1)
}

// Debugf formats a message via fmt.Sprintf. Use sparingly: formatting
// allocates; prefer structured fields on hot paths.
func Debugf(msg string, a ...any) { Logger().Debug(fmt.Sprintf(msg, a...)) }

// Infof formats a message via fmt.Sprintf. Prefer Info with fields on hot
// paths.
func Infof(msg string, a ...any) { Logger().Info(fmt.Sprintf(msg, a...)) }

// Warnf formats a message via fmt.Sprintf. Prefer passing data through
// zap.Field.
func Warnf(msg string, a ...any) { Logger().Warn(fmt.Sprintf(msg, a...)) }

// Errorf formats a message via fmt.Sprintf. Use Error with fields on
// critical paths.
func Errorf(msg string, a ...any) { Logger().Error(fmt.Sprintf(msg, a...)) }
