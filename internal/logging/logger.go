// Package logging provides per-module slog loggers with runtime-adjustable
// levels, fan-out to stdout, the systemd journal, and an in-memory ring
// buffer backing the HTTP log endpoint.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger. Components
// accept this interface instead of the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config is the logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu              sync.RWMutex
	globalConfig    Config
	initialized     bool
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	logBuffer       = NewRingBuffer(defaultBufferSize)
)

// Initialize applies the configuration, recreating any module loggers that
// were handed out before the config was known.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	globalConfig = config
	initialized = true

	base := parseLevel(config.Level, slog.LevelInfo)
	for module, levelVar := range moduleLevelVars {
		level := base
		if s, ok := config.Modules[module]; ok {
			level = parseLevel(s, level)
		}
		levelVar.Set(level)
		moduleLoggers[module] = slog.New(newHandler(config.Format, levelVar)).With("module", module)
	}

	root := &slog.LevelVar{}
	root.Set(base)
	slog.SetDefault(slog.New(newHandler(config.Format, root)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if l, ok := moduleLoggers[module]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := moduleLoggers[module]; ok {
		return l
	}

	levelVar := &slog.LevelVar{}
	level := slog.LevelInfo
	format := "text"
	if initialized {
		level = parseLevel(globalConfig.Level, level)
		if s, ok := globalConfig.Modules[module]; ok {
			level = parseLevel(s, level)
		}
		format = globalConfig.Format
	}
	levelVar.Set(level)

	l := slog.New(newHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = l
	moduleLevelVars[module] = levelVar
	return l
}

// SetModuleLevel changes a module's level at runtime. Returns false when no
// logger for the module has been created.
func SetModuleLevel(module, level string) bool {
	mu.RLock()
	defer mu.RUnlock()
	lv, ok := moduleLevelVars[module]
	if !ok {
		return false
	}
	lv.Set(parseLevel(level, lv.Level()))
	return true
}

// Buffer returns the ring buffer holding recent log entries.
func Buffer() *RingBuffer {
	return logBuffer
}

// newHandler builds the fan-out handler chain for one logger: stdout in the
// configured format, the journal when running under systemd, and the ring
// buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	handlers := []slog.Handler{stdout}
	if journalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	handlers = append(handlers, newBufferHandler(logBuffer, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return newMultiHandler(handlers...)
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
