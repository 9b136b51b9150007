// Package logging backs log/slog with a zap core.
package logging

import (
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Shared by every logger built here, so the level can change after the
// default logger has been installed.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Controls how log records are rendered.
type Config struct {
	Name    string    // Logger name attached to every record.
	Console bool      // Human-readable output instead of JSON.
	Verbose bool      // Add timestamps and caller locations.
	Output  io.Writer // Destination of log records.
}

// Creates a slog logger writing through zap.
func New(cfg Config) *slog.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	if cfg.Console {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !cfg.Verbose {
			encCfg.TimeKey = zapcore.OmitKey
			encCfg.NameKey = zapcore.OmitKey
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(cfg.Output), level)

	return slog.New(zapslog.NewHandler(core,
		zapslog.WithName(cfg.Name),
		zapslog.WithCaller(cfg.Verbose),
	))
}

// Sets the minimum level of every logger built by [New].
func SetLevel(l slog.Level) {
	level.SetLevel(zapLevel(l))
}

// Returns the current minimum level.
func Level() slog.Level {
	switch level.Level() {
	case zapcore.DebugLevel:
		return slog.LevelDebug
	case zapcore.WarnLevel:
		return slog.LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// Whether the given file is an interactive terminal.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
