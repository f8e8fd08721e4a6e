package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes timestamped log lines to ~/.nexus3/nexus3d.log.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// logFilePath returns the path to the daemon log file.
func logFilePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nexus3d.log"), nil
}

// LogPath returns the log file path (for tools to read).
func LogPath() string {
	p, err := logFilePath()
	if err != nil {
		return ""
	}
	return p
}

// NewLogger creates a logger that appends to ~/.nexus3/nexus3d.log.
func NewLogger() *Logger {
	l := &Logger{}

	p, err := logFilePath()
	if err != nil {
		return l
	}

	return newLoggerAtPath(l, p)
}

// NewLoggerAt creates a logger that appends to nexus3d.log inside dir,
// overriding the default ~/.nexus3 location (the CLI's --log-dir flag).
func NewLoggerAt(dir string) *Logger {
	l := &Logger{}
	if dir == "" {
		return NewLogger()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return l
	}
	return newLoggerAtPath(l, filepath.Join(dir, "nexus3d.log"))
}

func newLoggerAtPath(l *Logger, p string) *Logger {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return l
	}
	l.file = f
	return l
}

// Printf writes a timestamped log line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(l.file, ts+" "+format+"\n", args...)
}

// Close closes the log file.
func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}
