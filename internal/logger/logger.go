// Package logger is a small leveled, structured logger on top of log/slog.
//
// Usage: logger.Info("message", "key1", value1, "key2", value2)
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar) // defaults to INFO
	format  = "text"
	output  io.Writer = os.Stderr
	slogger *slog.Logger
)

func init() {
	reconfigure()
}

// reconfigure rebuilds the slog handler based on current settings.
// Callers must not hold mu.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	slogger = slog.New(h)
}

// Init applies cfg. Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var w io.Writer
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w = os.Stdout
		case "stderr":
			w = os.Stderr
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w = f
		}
		mu.Lock()
		output = w
		mu.Unlock()
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

// InitWithWriter points the logger at w. Primarily useful for testing.
func InitWithWriter(w io.Writer, lvl, fmtName string) {
	mu.Lock()
	output = w
	mu.Unlock()
	if lvl != "" {
		SetLevel(lvl)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
	reconfigure()
}

// SetLevel sets the minimum log level; invalid levels are ignored.
func SetLevel(l string) {
	switch strings.ToUpper(l) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	}
}

// SetFormat sets the output format (text or json); invalid formats are ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}
	mu.Lock()
	format = f
	mu.Unlock()
	reconfigure()
}

func get() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// Debug logs at debug level with structured fields
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level with structured fields
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level with structured fields
func Error(msg string, args ...any) { get().Error(msg, args...) }
