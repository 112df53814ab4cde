// Package logging builds the categorized zap loggers used across htmlinc.
// Every subsystem logs under a Category; categories can be switched off in
// config, and when a log directory is set each category is also written to
// its own dated file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryFetch   Category = "fetch"   // Fragment retrieval
	CategoryParams  Category = "params"  // Parameter gathering and blob parsing
	CategoryInclude Category = "include" // Include passes and host outcomes
	CategoryServe   Category = "serve"   // HTTP server
	CategoryWatch   Category = "watch"   // File watcher and rebuilds
	CategoryBrowser Category = "browser" // Browser automation
)

// Categories lists every known category.
func Categories() []Category {
	return []Category{CategoryFetch, CategoryParams, CategoryInclude, CategoryServe, CategoryWatch, CategoryBrowser}
}

// Config controls logger construction.
type Config struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is "console" or "json".
	Format string
	// Categories disables a category when mapped to false. Missing
	// categories are enabled.
	Categories map[string]bool
	// Dir, when set, receives one JSON log file per category.
	Dir string
}

// Logging owns the root logger and any per-category files.
type Logging struct {
	cfg   Config
	level zap.AtomicLevel
	root  *zap.Logger

	mu      sync.Mutex
	loggers map[Category]*zap.Logger
	files   []*os.File
}

// New builds a Logging writing human output to w (stderr when nil).
func New(cfg Config, w io.Writer) (*Logging, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc = zapcore.NewConsoleEncoder(ec)
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level := zap.NewAtomicLevelAt(lvl)
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return &Logging{
		cfg:     cfg,
		level:   level,
		root:    zap.New(core),
		loggers: make(map[Category]*zap.Logger),
	}, nil
}

// ParseLevel maps a config level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Root returns the uncategorized logger.
func (l *Logging) Root() *zap.Logger {
	return l.root
}

// SetLevel changes the level of every logger built from l.
func (l *Logging) SetLevel(lvl zapcore.Level) {
	l.level.SetLevel(lvl)
}

// IsCategoryEnabled reports whether c is switched on.
func (l *Logging) IsCategoryEnabled(c Category) bool {
	if l.cfg.Categories == nil {
		return true
	}
	enabled, ok := l.cfg.Categories[string(c)]
	return !ok || enabled
}

// Get returns (or creates) the logger for a category. Disabled categories
// get a no-op logger.
func (l *Logging) Get(c Category) *zap.Logger {
	if !l.IsCategoryEnabled(c) {
		return zap.NewNop()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lg, ok := l.loggers[c]; ok {
		return lg
	}

	lg := l.root.Named(string(c))
	if l.cfg.Dir != "" {
		date := time.Now().Format("2006-01-02")
		path := filepath.Join(l.cfg.Dir, fmt.Sprintf("%s_%s.log", date, c))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			lg.Warn("could not open category log file", zap.String("path", path), zap.Error(err))
		} else {
			l.files = append(l.files, f)
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.Lock(f),
				l.level,
			)
			lg = lg.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
				return zapcore.NewTee(c, fileCore)
			}))
		}
	}
	l.loggers[c] = lg
	return lg
}

// Close flushes and closes category files.
func (l *Logging) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.root.Sync()
	if err != nil && !isIgnorableSyncError(err) {
		err = fmt.Errorf("sync root logger: %w", err)
	} else {
		err = nil
	}
	for _, f := range l.files {
		err = multierr.Append(err, f.Close())
	}
	l.files = nil
	l.loggers = make(map[Category]*zap.Logger)
	return err
}

// For names log after c, tolerating a nil logger.
func For(log *zap.Logger, c Category) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.Named(string(c))
}

// Syncing a terminal returns EINVAL or ENOTTY on some platforms.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
