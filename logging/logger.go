package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logger struct {
	name  string
	level zap.AtomicLevel
	out   *appenders
}

// appenders is shared by a logger and all of its subloggers. base is rebuilt whenever an
// appender is added.
type appenders struct {
	mu    sync.RWMutex
	cores []zapcore.Core
	base  *zap.Logger
}

func newLogger(name string, level Level, cores ...zapcore.Core) *logger {
	out := &appenders{}
	out.set(cores)
	return &logger{name: name, level: zap.NewAtomicLevelAt(level), out: out}
}

func (a *appenders) set(cores []zapcore.Core) {
	a.cores = cores
	// Skip logger.Xw and logger.log so the caller is the code using the Logger.
	a.base = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))
}

func (a *appenders) add(core zapcore.Core) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(append(append([]zapcore.Core(nil), a.cores...), core))
}

func (a *appenders) logger() *zap.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.base
}

func (l *logger) AddAppender(appender Appender) {
	l.out.add(appender)
}

func (l *logger) SetLevel(level Level) {
	l.level.SetLevel(level)
}

func (l *logger) GetLevel() Level {
	return l.level.Level()
}

func (l *logger) Sublogger(subname string) Logger {
	name := subname
	if l.name != "" {
		name = l.name + "." + subname
	}
	return &logger{name: name, level: zap.NewAtomicLevelAt(l.GetLevel()), out: l.out}
}

func (l *logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.log(DEBUG, msg, keysAndValues)
}

func (l *logger) Infow(msg string, keysAndValues ...interface{}) {
	l.log(INFO, msg, keysAndValues)
}

func (l *logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.log(WARN, msg, keysAndValues)
}

func (l *logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.log(ERROR, msg, keysAndValues)
}

func (l *logger) log(level Level, msg string, keysAndValues []interface{}) {
	if !l.level.Enabled(level) {
		return
	}
	sugar := l.out.logger().Named(l.name).Sugar()
	switch level {
	case DEBUG:
		sugar.Debugw(msg, keysAndValues...)
	case INFO:
		sugar.Infow(msg, keysAndValues...)
	case WARN:
		sugar.Warnw(msg, keysAndValues...)
	default:
		sugar.Errorw(msg, keysAndValues...)
	}
}
