// Package logging sets up the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Options configures Init.
type Options struct {
	// Debug switches the level from info to debug.
	Debug bool
	// Trace goes one step further and logs every contract call.
	Trace        bool
	DisableColor bool
	HideTime     bool
	// LogFile, when set, receives every entry through a daily-rotated file.
	LogFile string
	// Quiet drops console output. The TUI owns the terminal, so it logs to
	// LogFile only.
	Quiet bool
}

// Init configures the standard logrus logger. It may be called again to
// reconfigure it.
func Init(opts Options) error {
	return Configure(logrus.StandardLogger(), opts)
}

// Configure applies opts to l.
func Configure(l *logrus.Logger, opts Options) error {
	switch {
	case opts.Trace:
		l.SetLevel(logrus.TraceLevel)
	case opts.Debug:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	l.SetFormatter(&Formatter{
		DisableColor: opts.DisableColor,
		HideTime:     opts.HideTime,
	})

	if opts.Quiet {
		l.SetOutput(io.Discard)
	} else {
		l.SetOutput(os.Stderr)
	}

	l.ReplaceHooks(make(logrus.LevelHooks))
	if opts.LogFile != "" {
		fh, err := NewFileHook(opts.LogFile)
		if err != nil {
			return fmt.Errorf("failed to init log file hook: %w", err)
		}
		l.AddHook(fh)
	}
	return nil
}

// NewFileHook writes all levels to path, rotated daily. path is the name of
// a symlink to the current file.
func NewFileHook(path string) (logrus.Hook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	writer, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(7*24*time.Hour),
	)
	if err != nil {
		return nil, err
	}

	writers := lfshook.WriterMap{}
	for _, level := range logrus.AllLevels {
		writers[level] = writer
	}
	return lfshook.NewHook(writers, &logrus.TextFormatter{
		DisableColors: true,
		CallerPrettyfier: func(frame *runtime.Frame) (function string, file string) {
			return "", fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		},
	}), nil
}
