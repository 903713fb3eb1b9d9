// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package xlog provides structured logging for the engine, following the
// teacher's slog-wrapping Logger interface.
package xlog

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"
)

// Logger is the interface used across the engine for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

type slogLogger struct {
	logger *slog.Logger
}

// Format selects the handler used by New.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures a Logger built with New.
type Config struct {
	Level  slog.Level
	Format Format
	Output *os.File
}

// DefaultConfig returns a text logger at Info level writing to stdout.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: FormatText, Output: os.Stdout}
}

// New creates a Logger from config, defaulting when config is nil.
func New(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}
	opts := &slog.HandlerOptions{
		Level: config.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &slogLogger{logger: slog.New(handler).With("component", "experimaestro")}
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, sanitizeFields(args)...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, sanitizeFields(args)...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, sanitizeFields(args)...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, sanitizeFields(args)...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(sanitizeFields(args)...)}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	type jobIDKey struct{}
	if jobID := ctx.Value(jobIDKey{}); jobID != nil {
		return l.With("job_id", jobID)
	}
	return l
}

// sanitizeLogValue strips control characters from string values to avoid
// log injection through user-supplied argument names or paths.
func sanitizeLogValue(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func sanitizeFields(fields []any) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = sanitizeLogValue(f)
	}
	return out
}

// NoOpLogger discards everything; used as a safe zero value.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any)          {}
func (NoOpLogger) Info(string, ...any)           {}
func (NoOpLogger) Warn(string, ...any)           {}
func (NoOpLogger) Error(string, ...any)          {}
func (NoOpLogger) With(...any) Logger            { return NoOpLogger{} }
func (NoOpLogger) WithContext(context.Context) Logger { return NoOpLogger{} }

// Default is the package-level logger used where no explicit Logger is
// threaded through.
var Default = New(DefaultConfig())
