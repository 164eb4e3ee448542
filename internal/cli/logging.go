package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"evolvedvault.dev/internal/config"
)

// levelFanout sends each record to every handler whose own level admits it,
// so stderr and the log file can filter independently.
type levelFanout struct {
	handlers []slog.Handler
}

func newLevelFanout(handlers ...slog.Handler) *levelFanout {
	return &levelFanout{handlers: handlers}
}

func (h *levelFanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes record to every enabled handler, even after one fails.
func (h *levelFanout) Handle(ctx context.Context, record slog.Record) error {
	var errs error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		errs = multierr.Append(errs, handler.Handle(ctx, record.Clone()))
	}
	return errs
}

func (h *levelFanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h *levelFanout) WithGroup(name string) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h *levelFanout) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = fn(handler)
	}
	return newLevelFanout(handlers...)
}

// bootstrapLogger is used until the configuration has been loaded.
func bootstrapLogger(stderr io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// newLogger builds the logger for one run. Records at the configured level go
// to stderr; when file logging is enabled they also go to a rotating file,
// which records at least info. The returned func closes the file.
func newLogger(cfg *config.Config, verbose bool, stderr io.Writer, logFilePath string) (*slog.Logger, func() error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	if verbose {
		level = slog.LevelDebug
	}

	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	noop := func() error { return nil }

	if cfg.FileLogging == nil || !cfg.FileLogging.Enabled {
		return slog.New(stderrHandler), noop
	}

	logDir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// Continue without file logging rather than failing the run.
		logger := slog.New(stderrHandler)
		logger.Warn("failed to create log directory", "path", logDir, "error", err)
		return logger, noop
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.FileLogging.MaxSizeMB,
		MaxBackups: cfg.FileLogging.MaxBackups,
		MaxAge:     cfg.FileLogging.MaxAgeDays,
		Compress:   cfg.FileLogging.Compress,
	}

	fileLevel := slog.LevelInfo
	if level < fileLevel {
		fileLevel = level
	}
	fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: fileLevel})

	logger := slog.New(newLevelFanout(stderrHandler, fileHandler))
	logger.Debug("file logging enabled", "path", logFilePath, "level", fileLevel.String())
	return logger, fileWriter.Close
}
