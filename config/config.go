// Package config loads datacache settings from a YAML file, a .env file next
// to it and the process environment, in increasing order of precedence.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/go-datacache/cache"
	"github.com/agentuity/go-datacache/env"
	"github.com/agentuity/go-datacache/logger"
	"github.com/agentuity/go-datacache/staleness"
	"github.com/agentuity/go-datacache/store"
	"github.com/agentuity/go-datacache/sys"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is looked up in the working directory when Load is given
// no path.
const DefaultFilename = "datacache.yaml"

// Environment variables overriding file settings.
const (
	EnvRoot          = cache.EnvRoot
	EnvTimezone      = "DATACACHE_TZ"
	EnvLogLevel      = logger.EnvLogLevel
	EnvStaleness     = "DATACACHE_STALENESS"
	EnvDatabase      = "DATACACHE_DB"
	EnvDatabaseAlive = "DATACACHE_DB_KEEPALIVE"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

type Database struct {
	Path      string `yaml:"path,omitempty"`
	KeepAlive bool   `yaml:"keep_alive,omitempty"`
}

type Config struct {
	Root      string   `yaml:"root,omitempty"`
	Timezone  string   `yaml:"timezone,omitempty"`
	LogLevel  string   `yaml:"log_level,omitempty"`
	Staleness string   `yaml:"staleness,omitempty"`
	Database  Database `yaml:"database,omitempty"`
}

// Load reads the YAML file at path, then applies a .env file from the same
// directory and finally the process environment. An empty path means
// DefaultFilename, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	c := &Config{}
	explicit := path != ""
	if !explicit {
		path = DefaultFilename
	}
	if sys.Exists(path) {
		if err := c.readFile(path); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, errors.Newf("config file %s not found", path)
	}
	envs, err := env.ParseEnvFile(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	if err := c.Overlay(env.ToMap(envs)); err != nil {
		return nil, err
	}
	if err := c.Overlay(environ()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) readFile(path string) error {
	of, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open config file %s", path)
	}
	defer of.Close()
	if err := yaml.NewDecoder(of).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "failed to decode YAML config file %s", path)
	}
	return nil
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "DATACACHE_") {
			out[k] = v
		}
	}
	return out
}

// Overlay replaces settings with the non-empty DATACACHE_* values in vars.
func (c *Config) Overlay(vars map[string]string) error {
	set := func(key string, dst *string) {
		if v := vars[key]; v != "" {
			*dst = v
		}
	}
	set(EnvRoot, &c.Root)
	set(EnvTimezone, &c.Timezone)
	set(EnvLogLevel, &c.LogLevel)
	set(EnvStaleness, &c.Staleness)
	set(EnvDatabase, &c.Database.Path)
	if v := vars[EnvDatabaseAlive]; v != "" {
		alive, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "%s=%q is not a boolean", EnvDatabaseAlive, v)
		}
		c.Database.KeepAlive = alive
	}
	return nil
}

// Window parses Staleness.
func (c *Config) Window() (staleness.Window, error) {
	return staleness.ParseWindow(c.Staleness)
}

// Location loads Timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Level returns the configured log level, or the level from the environment
// when none is set.
func (c *Config) Level() logger.LogLevel {
	if level, ok := logger.ParseLevel(c.LogLevel); ok {
		return level
	}
	return logger.GetLevelFromEnv()
}

// Store returns the database handle config.
func (c *Config) Store() store.Config {
	return store.Config{Path: c.Database.Path, KeepAlive: c.Database.KeepAlive}
}

// Validate checks every setting that needs parsing.
func (c *Config) Validate() error {
	if _, err := c.Window(); err != nil {
		return errors.Wrapf(ErrInvalid, "staleness: %s", err)
	}
	if _, err := c.Location(); err != nil {
		return errors.Wrapf(ErrInvalid, "timezone %q: %s", c.Timezone, err)
	}
	if c.LogLevel != "" {
		if _, ok := logger.ParseLevel(c.LogLevel); !ok {
			return errors.Wrapf(ErrInvalid, "log level %q", c.LogLevel)
		}
	}
	return nil
}

// Apply validates c and installs it as the default for decorators created
// afterwards.
func (c *Config) Apply() error {
	if err := c.Validate(); err != nil {
		return err
	}
	w, _ := c.Window()
	cache.SetDefaultRoot(c.Root)
	cache.SetDefaultTimezone(c.Timezone)
	cache.SetDefaultStaleness(w)
	return nil
}

// Save writes c as YAML to path.
func (c *Config) Save(path string) error {
	if err := sys.EnsureParentDir(path); err != nil {
		return err
	}
	of, err := os.Create(path)
	if err != nil {
		return err
	}
	defer of.Close()
	of.WriteString("# datacache configuration\n")
	enc := yaml.NewEncoder(of)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.Wrapf(err, "failed to encode config file %s", path)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return of.Close()
}
