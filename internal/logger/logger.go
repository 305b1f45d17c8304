// Package logger writes repolens diagnostics to stderr.
//
// Debug, Info and section headers only appear with --verbose. Warnings and
// errors are always written, since they report skipped documents and failed
// stages. In MCP stdio mode stdout carries the protocol, so nothing here
// may write to it.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Level orders log messages by severity.
type Level int

// Levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var labels = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// String returns the label printed in front of messages of this level.
func (l Level) String() string {
	if s, ok := labels[l]; ok {
		return s
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables debug and info output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose reports whether debug and info output is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects log output. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// enabled reports whether messages at level l are written. Caller holds mu.
func enabled(l Level) bool {
	return verbose || l >= LevelWarn
}

func logf(l Level, prefix, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled(l) {
		return
	}
	fmt.Fprintf(output, "[%s] %s%s\n", l, prefix, fmt.Sprintf(format, args...))
}

// Debug logs a verbose-only diagnostic.
func Debug(format string, args ...any) { logf(LevelDebug, "", format, args...) }

// Info logs a verbose-only progress message.
func Info(format string, args ...any) { logf(LevelInfo, "", format, args...) }

// Warn logs a recoverable problem.
func Warn(format string, args ...any) { logf(LevelWarn, "", format, args...) }

// Error logs a failure.
func Error(format string, args ...any) { logf(LevelError, "", format, args...) }

// Section prints a header separating the output of one stage run from the
// next. Verbose only.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Entry prefixes every message with the repository and stage it concerns.
type Entry struct {
	prefix string
}

// ForStage returns an Entry for one stage of one repository.
func ForStage(repo, stage string) Entry {
	return Entry{prefix: fmt.Sprintf("%s/%s: ", repo, stage)}
}

// Debug logs a verbose-only diagnostic for the entry's stage.
func (e Entry) Debug(format string, args ...any) { logf(LevelDebug, e.prefix, format, args...) }

// Info logs a verbose-only progress message for the entry's stage.
func (e Entry) Info(format string, args ...any) { logf(LevelInfo, e.prefix, format, args...) }

// Warn logs a recoverable problem for the entry's stage.
func (e Entry) Warn(format string, args ...any) { logf(LevelWarn, e.prefix, format, args...) }

// Error logs a failure of the entry's stage.
func (e Entry) Error(format string, args ...any) { logf(LevelError, e.prefix, format, args...) }
