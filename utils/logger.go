package utils

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// LogOptions selects the level and the files the global logger writes to
type LogOptions struct {
	Debug bool
	// Dir holds tierarb.log and tierarb-error.log; empty logs to the console only
	Dir string
}

// BuildLogger creates a production logger for opts
func BuildLogger(opts LogOptions) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	if opts.Dir != "" {
		dir := strings.TrimRight(opts.Dir, "/")
		config.OutputPaths = append(config.OutputPaths, dir+"/tierarb.log")
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, dir+"/tierarb-error.log")
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("tierarb"), nil
}

// InitLogger initializes the global logger instance. Only the first call
// takes effect.
func InitLogger(opts LogOptions) *zap.Logger {
	once.Do(func() {
		logger, err := BuildLogger(opts)
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(LogOptions{})
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
