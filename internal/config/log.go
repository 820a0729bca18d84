package config

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLevel converts the configured level name to slog.Level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a text logger writing to out and, when File is set,
// to a size-rotated copy. The returned closer releases the file.
func (l Log) NewLogger(out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if l.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAge:     l.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotated)
		closer = rotated
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: l.SlogLevel()}))
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
