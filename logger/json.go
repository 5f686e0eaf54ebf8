package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// JSONLogEntry is one line of structured output.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity,omitempty"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (e JSONLogEntry) String() string {
	if e.Severity == "" {
		e.Severity = "INFO"
	}
	out, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"message":%q,"severity":"ERROR"}`, err.Error())
	}
	return string(out)
}

type jsonLogger struct {
	metadata     map[string]interface{}
	component    string
	out          io.Writer
	sink         Sink
	sinkLogLevel LogLevel
	logLevel     LogLevel
	ts           *time.Time // for unit testing
	child        Logger
}

var _ SinkLogger = (*jsonLogger)(nil)

func (c *jsonLogger) clone() *jsonLogger {
	return &jsonLogger{
		metadata:     copyMetadata(c.metadata),
		component:    c.component,
		out:          c.out,
		sink:         c.sink,
		sinkLogLevel: c.sinkLogLevel,
		logLevel:     c.logLevel,
		ts:           c.ts,
		child:        c.child,
	}
}

func (c *jsonLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

func (c *jsonLogger) SetSink(sink Sink, level LogLevel) {
	c.sink = sink
	c.sinkLogLevel = level
	if c.child != nil {
		if child, ok := c.child.(SinkLogger); ok {
			child.SetSink(sink, level)
		}
	}
}

// WithPrefix appends prefix to the component field.
func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	prefix = strings.Trim(prefix, "[]")
	switch {
	case clone.component == "":
		clone.component = prefix
	case !strings.Contains(clone.component, prefix):
		clone.component += ", " + prefix
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

func (c *jsonLogger) WithLevel(level LogLevel) Logger {
	clone := c.clone()
	clone.logLevel = level
	return clone
}

func (c *jsonLogger) With(fields map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range fields {
		clone.metadata[k] = v
	}
	if comp, ok := clone.metadata["component"].(string); ok {
		clone.component = comp
		delete(clone.metadata, "component")
	}
	if c.child != nil {
		clone.child = c.child.With(fields)
	}
	return clone
}

func (c *jsonLogger) IsLevelEnabled(level LogLevel) bool {
	return (c.out != nil && level >= c.logLevel) || (c.sink != nil && level >= c.sinkLogLevel)
}

func (c *jsonLogger) Log(level LogLevel, msg string, args ...interface{}) {
	if !c.IsLevelEnabled(level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	entry := JSONLogEntry{
		Severity:  level.String(),
		Message:   ansiColorStripper.ReplaceAllString(msg, ""),
		Component: c.component,
		Timestamp: time.Now(),
	}
	if len(c.metadata) > 0 {
		entry.Metadata = c.metadata
	}
	if c.ts != nil {
		entry.Timestamp = *c.ts
	}
	line := entry.String() + "\n"
	if c.out != nil && level >= c.logLevel {
		consoleMu.Lock()
		io.WriteString(c.out, line)
		consoleMu.Unlock()
	}
	if c.sink != nil && level >= c.sinkLogLevel {
		c.sink.Write([]byte(line))
	}
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) {
	c.Log(LevelTrace, msg, args...)
	if c.child != nil {
		c.child.Trace(msg, args...)
	}
}

func (c *jsonLogger) Debug(msg string, args ...interface{}) {
	c.Log(LevelDebug, msg, args...)
	if c.child != nil {
		c.child.Debug(msg, args...)
	}
}

func (c *jsonLogger) Info(msg string, args ...interface{}) {
	c.Log(LevelInfo, msg, args...)
	if c.child != nil {
		c.child.Info(msg, args...)
	}
}

func (c *jsonLogger) Warn(msg string, args ...interface{}) {
	c.Log(LevelWarn, msg, args...)
	if c.child != nil {
		c.child.Warn(msg, args...)
	}
}

func (c *jsonLogger) Error(msg string, args ...interface{}) {
	c.Log(LevelError, msg, args...)
	if c.child != nil {
		c.child.Error(msg, args...)
	}
}

func (c *jsonLogger) Fatal(msg string, args ...interface{}) {
	c.Log(LevelError, msg, args...)
	if c.child != nil {
		c.child.Error(msg, args...)
	}
	os.Exit(1)
}

func (c *jsonLogger) SetLogLevel(level LogLevel) {
	c.logLevel = level
}

func (c *jsonLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

// NewJSONLogger returns a Logger writing one JSON object per line to stderr.
func NewJSONLogger(levels ...LogLevel) SinkLogger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return &jsonLogger{out: os.Stderr, logLevel: level, sinkLogLevel: LevelNone}
}

// NewJSONLoggerWithSink returns a Logger which only writes to sink.
func NewJSONLoggerWithSink(sink Sink, level LogLevel) SinkLogger {
	return &jsonLogger{sink: sink, sinkLogLevel: level, logLevel: LevelNone}
}
