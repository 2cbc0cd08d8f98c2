package logging

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the time layout of console lines, always in UTC.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. Any zap core can be used, such as the observer in tests.
type Appender = zapcore.Core

// NewStdoutAppender returns an appender writing console lines to stdout.
func NewStdoutAppender() Appender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender returns an appender writing tab separated console lines to w: time, level,
// logger name, caller, message and the fields as JSON.
func NewWriterAppender(w io.Writer) Appender {
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		FunctionKey:   zapcore.OmitKey,
		MessageKey:    "msg",
		StacktraceKey: zapcore.OmitKey,
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format(DefaultTimeFormatStr))
		},
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
	return zapcore.NewCore(encoder, zapcore.AddSync(w), DEBUG)
}
