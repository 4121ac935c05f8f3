// Package testutil holds helpers shared by the rw tests.
package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// IsolateEnv snapshots the given environment variables and restores them
// when the test ends. Cleanups run LIFO, so nested calls restore in order.
func IsolateEnv(t *testing.T, keys ...string) {
	t.Helper()

	snapshot := make(map[string]*string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			vCopy := v
			snapshot[k] = &vCopy
		} else {
			snapshot[k] = nil
		}
	}

	t.Cleanup(func() {
		for k, v := range snapshot {
			if v == nil {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, *v)
			}
		}
	})
}

// WriteFile writes content to name in dir, or in a fresh temporary
// directory when dir is empty, and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// LogEntry is one message seen by a Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// Logger records every message. It satisfies the rw logger contract.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *Logger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.add("error", msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.add("debug", msg, args) }

// Entries returns the recorded messages.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Has reports whether msg was logged at any level.
func (l *Logger) Has(msg string) bool {
	for _, e := range l.Entries() {
		if e.Msg == msg {
			return true
		}
	}
	return false
}
