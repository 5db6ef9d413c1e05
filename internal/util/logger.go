package util

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base     *zap.Logger
	initOnce sync.Once
)

// Init builds the process-wide logger. Development gets colored console
// output, production gets sampled JSON. Safe to call more than once; only
// the first call takes effect.
func Init(environment, level, format string) *zap.Logger {
	initOnce.Do(func() {
		encCfg := zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		var enc zapcore.Encoder
		if format == "console" && environment != "production" {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			enc = zapcore.NewConsoleEncoder(encCfg)
		} else {
			encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
			enc = zapcore.NewJSONEncoder(encCfg)
		}

		core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), ParseLevel(level))
		if environment == "production" {
			core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
		}

		opts := []zap.Option{zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))}
		if environment != "production" {
			opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
		}

		base = zap.New(core, opts...).Named("secops")
		zap.ReplaceGlobals(base)
	})

	return base
}

// Get returns the process logger, initializing production defaults first
// if Init was never called.
func Get() *zap.Logger {
	if base == nil {
		return Init("production", "info", "json")
	}
	return base
}

// Sync flushes buffered entries. Called once during shutdown.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}

// ParseLevel maps a configuration string onto a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
