package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Metadata  map[string]interface{}
}

// Text returns the formatted message.
func (e TestLogEntry) Text() string {
	if len(e.Arguments) == 0 {
		return e.Message
	}
	return fmt.Sprintf(e.Message, e.Arguments...)
}

type testStore struct {
	mu      sync.Mutex
	entries []TestLogEntry
}

// TestLogger records entries in memory. Loggers derived through With,
// WithPrefix or WithLevel record into the same store as their parent.
type TestLogger struct {
	metadata map[string]interface{}
	level    LogLevel
	store    *testStore
	child    Logger
}

var _ SinkLogger = (*TestLogger)(nil)

func (c *TestLogger) derive() *TestLogger {
	return &TestLogger{metadata: copyMetadata(c.metadata), level: c.level, store: c.store, child: c.child}
}

func (c *TestLogger) SetSink(sink Sink, level LogLevel) {
}

func (c *TestLogger) WithContext(ctx context.Context) Logger {
	return c
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) WithLevel(level LogLevel) Logger {
	l := c.derive()
	l.level = level
	return l
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	l := c.derive()
	for k, v := range metadata {
		l.metadata[k] = v
	}
	if l.child != nil {
		l.child = l.child.With(metadata)
	}
	return l
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= c.level
}

func (c *TestLogger) Log(level LogLevel, severity string, msg string, args ...interface{}) {
	if level < c.level {
		return
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.entries = append(c.store.entries, TestLogEntry{severity, msg, args, copyMetadata(c.metadata)})
}

// Logs returns a snapshot of every recorded entry.
func (c *TestLogger) Logs() []TestLogEntry {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	out := make([]TestLogEntry, len(c.store.entries))
	copy(out, c.store.entries)
	return out
}

// Contains returns true if an entry at severity has formatted text
// containing substr. An empty severity matches any.
func (c *TestLogger) Contains(severity, substr string) bool {
	for _, e := range c.Logs() {
		if (severity == "" || e.Severity == severity) && strings.Contains(e.Text(), substr) {
			return true
		}
	}
	return false
}

// Reset discards every recorded entry.
func (c *TestLogger) Reset() {
	c.store.mu.Lock()
	c.store.entries = nil
	c.store.mu.Unlock()
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.Log(LevelTrace, "TRACE", msg, args...)
	if c.child != nil {
		c.child.Trace(msg, args...)
	}
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.Log(LevelDebug, "DEBUG", msg, args...)
	if c.child != nil {
		c.child.Debug(msg, args...)
	}
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.Log(LevelInfo, "INFO", msg, args...)
	if c.child != nil {
		c.child.Info(msg, args...)
	}
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.Log(LevelWarn, "WARNING", msg, args...)
	if c.child != nil {
		c.child.Warn(msg, args...)
	}
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.Log(LevelError, "ERROR", msg, args...)
	if c.child != nil {
		c.child.Error(msg, args...)
	}
}

// Fatal records the entry but does not exit.
func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.Log(LevelError, "FATAL", msg, args...)
	if c.child != nil {
		c.child.Error(msg, args...)
	}
}

func (c *TestLogger) Stack(next Logger) Logger {
	l := c.derive()
	l.child = next
	return l
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{level: LevelTrace, store: &testStore{}}
}
