package logger

// WithKV returns a logger carrying a single metadata key.
func WithKV(l Logger, key string, value interface{}) Logger {
	return l.With(map[string]interface{}{key: value})
}

// IsDebugEnabled returns true if l emits debug entries.
func IsDebugEnabled(l Logger) bool {
	return l.IsLevelEnabled(LevelDebug)
}

// New returns a logger for the named output format, "json" or "console".
// Anything else is treated as console.
func New(format string, level LogLevel) Logger {
	if format == "json" {
		return NewJSONLogger(level)
	}
	return NewConsoleLogger(level)
}

func copyMetadata(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
