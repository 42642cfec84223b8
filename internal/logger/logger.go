package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// The TUI owns the terminal, so all logging goes to a file. Before
// InitLogging is called every log call is a no-op.
var (
	mu      sync.Mutex
	file    *os.File
	std     *log.Logger
	debugOn bool
)

// InitLogging opens the log file at path and routes all subsequent log
// calls to it. Debug-level messages are dropped unless debug is true.
func InitLogging(debug bool, path string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if file != nil {
		file.Close()
	}

	file = f
	std = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	debugOn = debug

	return nil
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
		std = nil
	}
}

func output(level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if std == nil {
		return
	}

	std.Printf(level+" "+format, args...)
}

// Debugf logs a debug-level message.
func Debugf(format string, args ...any) {
	mu.Lock()
	on := debugOn
	mu.Unlock()

	if on {
		output("DEBUG", format, args...)
	}
}

// Infof logs an info-level message.
func Infof(format string, args ...any) {
	output("INFO", format, args...)
}

// Warnf logs a warning-level message.
func Warnf(format string, args ...any) {
	output("WARN", format, args...)
}

// Errorf logs an error-level message.
func Errorf(format string, args ...any) {
	output("ERROR", format, args...)
}
