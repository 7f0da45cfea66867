// Package logging builds the structured logger passed into every
// component at construction. There is no package-global logger: each
// caller gets its own *zap.SugaredLogger, matching spec.md §9's
// no-process-global-state note.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the rotating file sink. Zero-value Options still
// produce a working console-only logger.
type Options struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Debug      bool
}

// New builds a *zap.Logger teeing a human-readable console core for
// stderr with a JSON-encoded, size/age/backup-rotated file core, the
// way BT-Bridge-openai-realtime and iamprashant-voice-ai wire
// lumberjack behind zapcore.NewTee.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)

	cores := []zapcore.Core{consoleCore}

	if opts.Filename != "" {
		hook := &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    fallback(opts.MaxSizeMB, 50),
			MaxBackups: fallback(opts.MaxBackups, 5),
			MaxAge:     fallback(opts.MaxAgeDays, 14),
			Compress:   opts.Compress,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(hook),
			level,
		)
		cores = append(cores, fileCore)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func fallback(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
