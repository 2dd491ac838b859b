// Package logger builds the zap logger used by the command line tool and
// adapts it to the Logger interface of the library packages.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig contains configuration for the logger
type LoggerConfig struct {
	Debug     bool   // Enable debug level logging
	LogFormat string // "json" or "human"
	LogFile   string // Path to log file (optional)
}

// DefaultConfig returns a default configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		LogFormat: "human",
	}
}

// New builds a logger writing to stderr and, if set, to config.LogFile.
func New(config LoggerConfig) (*zap.SugaredLogger, error) {
	var zapConfig zap.Config

	switch config.LogFormat {
	case "json":
		zapConfig = zap.NewProductionConfig()
	case "human", "":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		// development config defaults to debug
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		return nil, fmt.Errorf("unknown log format %q: expected json or human", config.LogFormat)
	}

	outputPaths := []string{"stderr"}
	if config.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		outputPaths = append(outputPaths, config.LogFile)
	}
	zapConfig.OutputPaths = outputPaths
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	if config.Debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Sugared forwards the key-value logging calls of the library packages to
// a zap SugaredLogger.
type Sugared struct {
	l *zap.SugaredLogger
}

// NewSugared wraps l. A nil l discards everything.
func NewSugared(l *zap.SugaredLogger) *Sugared {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	return &Sugared{l: l}
}

func (s *Sugared) Debug(msg string, keysAndValues ...interface{}) {
	s.l.Debugw(msg, keysAndValues...)
}

func (s *Sugared) Info(msg string, keysAndValues ...interface{}) {
	s.l.Infow(msg, keysAndValues...)
}

func (s *Sugared) Error(msg string, keysAndValues ...interface{}) {
	s.l.Errorw(msg, keysAndValues...)
}

// With returns an adapter whose entries all carry keysAndValues.
func (s *Sugared) With(keysAndValues ...interface{}) *Sugared {
	return &Sugared{l: s.l.With(keysAndValues...)}
}

// Sync flushes any buffered log entries
func (s *Sugared) Sync() error {
	return s.l.Sync()
}
