// Package logging builds the application logger. Log lines go to a file so
// they never interleave with the terminal conversation.
package logging

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control where and how much is logged.
type Options struct {
	// Path of the JSON log file. Empty disables the file core.
	Path string
	// Verbose adds a debug-level console core on Console.
	Verbose bool
	Console zapcore.WriteSyncer
}

// New returns a logger and a func that flushes and closes it.
func New(opts Options) (*zap.Logger, func(), error) {
	var (
		cores   []zapcore.Core
		closers []func()
	)

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "failed to create log directory")
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open log file")
		}
		closers = append(closers, func() { f.Close() })

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zap.InfoLevel))
	}

	if opts.Verbose {
		console := opts.Console
		if console == nil {
			console = zapcore.Lock(os.Stderr)
		}
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), console, zap.DebugLevel))
	}

	if len(cores) == 0 {
		return zap.NewNop(), func() {}, nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	cleanup := func() {
		_ = logger.Sync()
		for _, c := range closers {
			c()
		}
	}
	return logger, cleanup, nil
}
