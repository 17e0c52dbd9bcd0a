// Package logging configures zerolog for the assistant. It supports console
// or JSON output, optional file logging for persistent debugging, and
// per-component child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ═══════════════════════════════════════════════════════════════════════════════

// Config configures the logger behavior.
type Config struct {
	Level      string    // debug, info, warn, error
	FilePath   string    // Optional file path for persistent logs
	JSON       bool      // Emit JSON instead of console lines
	NoColor    bool      // Disable ANSI color in console output
	ShowCaller bool      // Add file:line of caller
	Output     io.Writer // Console destination (default os.Stderr)
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level: "info",
	}
}

// VerboseConfig returns a configuration for verbose troubleshooting.
func VerboseConfig() *Config {
	return &Config{
		Level:      "debug",
		ShowCaller: true,
	}
}

// ParseLevel converts a level name to a zerolog level. Unknown names are an
// error; "warning" is accepted as warn.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ═══════════════════════════════════════════════════════════════════════════════

// Logger owns the configured zerolog logger and any open log file.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger from cfg.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: "15:04:05.000",
		}
	}

	l := &Logger{}
	writers := []io.Writer{out}

	if cfg.FilePath != "" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		l.file = f
		writers = append(writers, f)
	}

	zctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp()
	if cfg.ShowCaller {
		zctx = zctx.Caller()
	}
	l.Logger = zctx.Logger()
	return l, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Close closes any open file handles.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// SessionLogPath returns a timestamped log file path under dir.
func SessionLogPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("jarvis_%s.log", now.Format("2006-01-02_15-04-05")))
}

// ═══════════════════════════════════════════════════════════════════════════════
// GLOBAL LOGGER
// ═══════════════════════════════════════════════════════════════════════════════

var globalMu sync.Mutex

// SetGlobal installs l as the process-wide zerolog logger.
func SetGlobal(l zerolog.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()

	zlog.Logger = l
	zerolog.DefaultContextLogger = &l
}

// Global returns the process-wide zerolog logger.
func Global() zerolog.Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return zlog.Logger
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
