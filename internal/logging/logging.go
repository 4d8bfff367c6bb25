// Package logging builds the zap loggers used across the labeler.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding of a logger.
type Config struct {
	Level    string
	Encoding string
	// OutputPaths defaults to stderr so command output on stdout stays clean.
	OutputPaths []string
}

// NewLoggerConfig returns a zap config with ISO8601 times, short callers and no stacktraces.
func NewLoggerConfig(cfg Config) (zap.Config, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if cfg.Level == "" {
		level, err = zapcore.InfoLevel, nil
	}
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoding := strings.ToLower(cfg.Encoding)
	levelEncoder := zapcore.CapitalLevelEncoder
	switch encoding {
	case "", "console":
		encoding = "console"
		levelEncoder = zapcore.CapitalColorLevelEncoder
	case "json":
	default:
		return zap.Config{}, fmt.Errorf("invalid log encoding %q", cfg.Encoding)
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// New builds a named logger from cfg.
func New(name string, cfg Config) (*zap.Logger, error) {
	zcfg, err := NewLoggerConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named(name), nil
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
