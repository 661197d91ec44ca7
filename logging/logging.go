// Package logging contains the structured logger used across the graph, the constraint builder and the CLI.
package logging

import (
	"io"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var globalLogger = NewDebugLogger("startup")

// Global returns the global logger.
func Global() Logger {
	return globalLogger
}

// NewLogger returns a new logger that outputs Info+ logs to stdout in UTC.
func NewLogger(name string) Logger {
	const inUTC = true
	return register(&impl{name, NewAtomicLevelAt(INFO), inUTC, []Appender{NewStdoutAppender()}})
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout in UTC.
func NewDebugLogger(name string) Logger {
	const inUTC = true
	return register(&impl{name, NewAtomicLevelAt(DEBUG), inUTC, []Appender{NewStdoutAppender()}})
}

// NewWriterLogger returns a new logger at the given level that outputs to writer in UTC.
func NewWriterLogger(name string, level Level, writer io.Writer) Logger {
	const inUTC = true
	return register(&impl{name, NewAtomicLevelAt(level), inUTC, []Appender{NewWriterAppender(writer)}})
}

// NewBlankLogger returns a new logger that outputs Debug+ logs in UTC, but without any
// pre-existing appenders/outputs.
func NewBlankLogger(name string) Logger {
	const inUTC = true
	return &impl{name, NewAtomicLevelAt(DEBUG), inUTC, []Appender{}}
}

// NewTestLogger returns a new logger that outputs Debug+ logs to the test log in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	const inUTC = false
	logger := &impl{"", NewAtomicLevelAt(DEBUG), inUTC, []Appender{}}
	logger.AddAppender(NewTestAppender(tb))

	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger.AddAppender(observerCore)

	return logger, observedLogs
}
