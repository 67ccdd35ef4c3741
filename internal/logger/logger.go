// Package logger wraps zap with key/value helpers and secret redaction.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a Logger.
type Options struct {
	// Mode is "development" or "production".
	Mode string
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// File, when set, also writes JSON logs to a rotating file.
	File string
}

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a Logger writing to stderr and, optionally, a rotating file.
func New(opts Options) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || opts.Level == "" {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	var console zapcore.Encoder
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		console = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		console = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{zapcore.NewCore(console, zapcore.Lock(os.Stderr), level)}
	if opts.File != "" {
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.TimeKey = "timestamp"
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    100, // MB
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}),
			level,
		))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

// NewWithCore builds a Logger on an existing core.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(keysAndValues)...)}
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := toString(kv[i])
		if isRedactKey(strings.ToLower(key)) {
			out = append(out, key, "[REDACTED]")
			continue
		}
		out = append(out, key, kv[i+1])
	}
	return out
}

func isRedactKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "password"),
		strings.Contains(key, "api_key"):
		return true
	default:
		return false
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
