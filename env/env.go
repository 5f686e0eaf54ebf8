// Package env reads configuration inputs from .env files, the process
// environment and cobra flags.
package env

import (
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/agentuity/go-datacache/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// EnvLogFormat selects the log output format, "console" or "json".
const EnvLogFormat = "DATACACHE_LOG_FORMAT"

type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// ParseEnvFile parses an environment file. A missing file yields no lines.
func ParseEnvFile(filename string) ([]EnvLine, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return []EnvLine{}, nil
		}
		return nil, errors.Wrapf(err, "reading env file %s", filename)
	}
	return ParseEnvBuffer(buf)
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ProcessEnvLine splits a KEY=value line. An optional leading "export" is
// ignored and quotes around the value are removed.
func ProcessEnvLine(line string) EnvLine {
	line = strings.TrimPrefix(strings.TrimSpace(line), "export ")
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return EnvLine{Key: strings.TrimSpace(line)}
	}
	return EnvLine{Key: strings.TrimSpace(key), Val: dequote(strings.TrimSpace(val))}
}

var reference = regexp.MustCompile(`\$\{([^{}]*)\}`)

// interpolate expands ${VAR}, ${VAR:-default} and ${env:VAR} references.
// Unknown references without a default are left untouched.
func interpolate(input string, vars map[string]string) string {
	if !strings.Contains(input, "${") {
		return input
	}
	return reference.ReplaceAllStringFunc(input, func(ref string) string {
		name, def, hasDef := strings.Cut(ref[2:len(ref)-1], ":-")
		if name == "" {
			return ref
		}
		var val string
		if key, ok := strings.CutPrefix(name, "env:"); ok {
			val = os.Getenv(key)
		} else {
			val = vars[name]
		}
		switch {
		case val != "":
			return val
		case hasDef:
			return def
		}
		return ref
	})
}

// ParseEnvBuffer parses env file content. References are resolved against
// earlier lines first and then once more against the complete set, so
// forward references work too.
func ParseEnvBuffer(buf []byte) ([]EnvLine, error) {
	envs := make([]EnvLine, 0)
	vars := make(map[string]string)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		el := ProcessEnvLine(line)
		if el.Key == "" {
			continue
		}
		el.Val = interpolate(el.Val, vars)
		vars[el.Key] = el.Val
		envs = append(envs, el)
	}
	for i := range envs {
		envs[i].Val = interpolate(envs[i].Val, vars)
	}
	return envs, nil
}

// ToMap returns the lines keyed by name. Later lines win.
func ToMap(envs []EnvLine) map[string]string {
	m := make(map[string]string, len(envs))
	for _, el := range envs {
		m[el.Key] = el.Val
	}
	return m
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	if flagValue, _ := cmd.Flags().GetString(flagName); flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// LogLevel resolves the --log-level flag, then DATACACHE_LOG_LEVEL, then info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
	return level
}

// NewLogger returns a logger configured from the --log-level and --log-format
// flags or their environment equivalents.
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	return logger.New(FlagOrEnv(cmd, "log-format", EnvLogFormat, "console"), LogLevel(cmd))
}
