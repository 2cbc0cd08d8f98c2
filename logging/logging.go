// Package logging is the structured logging used throughout the module. A Logger is a named,
// leveled view over a set of zap cores which it shares with every sublogger derived from it.
package logging

import (
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Level is the severity of a log line.
type Level = zapcore.Level

// The levels used by the module.
const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
)

// Logger is the logging interface handed to estimators and classifiers.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" which writes to the same appenders.
	// Its level starts at the parent's and is set independently afterwards.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	GetLevel() Level
	// AddAppender adds an output to this logger and to every logger sharing its appenders.
	AddAppender(appender Appender)
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewLogger("posekde")
)

// ReplaceGlobal replaces the global logger.
func ReplaceGlobal(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// Global returns the global logger. Components fall back to a sublogger of it when none is given.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NewLogger returns a logger writing Info and above to stdout.
func NewLogger(name string) Logger {
	return newLogger(name, INFO, NewStdoutAppender())
}

// NewBlankLogger returns a logger at Debug with no appenders.
func NewBlankLogger(name string) Logger {
	return newLogger(name, DEBUG)
}

// NewTestLogger returns a logger at Debug that writes to tb.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also records every entry in memory.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	observerCore, observed := observer.New(DEBUG)
	return newLogger("", DEBUG, zaptest.NewLogger(tb).Core(), observerCore), observed
}
