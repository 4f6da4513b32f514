// Package logger provides leveled, prefixed logging on stderr.
//
// Stdout is reserved for the decision JSON a hook invocation must emit, so
// every log line, including errors, goes to stderr.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level represents log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	globalLevel             = LevelWarn // hook invocations stay quiet by default
	globalColored           = true
	globalOut     io.Writer = os.Stderr
	globalMu      sync.RWMutex
)

var (
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7")) // muted blue
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A")) // green
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0AF68")) // amber
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E")) // red
	styleDim   = lipgloss.NewStyle().Faint(true)
)

// Logger provides leveled logging with a component prefix.
type Logger struct {
	prefix string
}

// New creates a new logger with the given prefix
func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

// SetGlobalLevel sets the global log level
func SetGlobalLevel(level Level) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLevel = level
}

// SetColored enables or disables colored output
func SetColored(colored bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalColored = colored
}

// SetOutput redirects log output. Used by tests to capture warnings.
func SetOutput(w io.Writer) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalOut = w
}

// ParseLevel converts a string to a Level, returning an error if unrecognized.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
}

// SetGlobalLevelFromString sets log level from string, ignoring bad values.
func SetGlobalLevelFromString(level string) {
	if l, err := ParseLevel(level); err == nil {
		SetGlobalLevel(l)
	}
}

func (l *Logger) log(level Level, label string, style lipgloss.Style, format string, args ...any) {
	globalMu.RLock()
	if level < globalLevel {
		globalMu.RUnlock()
		return
	}
	colored := globalColored
	out := globalOut
	globalMu.RUnlock()

	ts := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)

	if colored {
		fmt.Fprintf(out, "%s %s %s %s\n",
			styleDim.Render(ts), style.Render(label), styleDim.Render(l.prefix), msg)
	} else {
		fmt.Fprintf(out, "%s %s %s %s\n", ts, label, l.prefix, msg)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, "DBG", styleDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, "INF", styleInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, "WRN", styleWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, "ERR", styleError, format, args...)
}
