package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentuity/go-datacache/frame"
	"github.com/agentuity/go-datacache/logger"
	"github.com/agentuity/go-datacache/serializer"
	"github.com/agentuity/go-datacache/staleness"
)

// EnvRoot is consulted by DefaultRoot when no root was set explicitly.
const EnvRoot = "DATACACHE_ROOT"

// DefaultPathFormat is used when no path format is configured.
const DefaultPathFormat = "{func}/{hash_key}/[date].msgpack"

// DefaultTimezone is the zone buckets are computed in.
const DefaultTimezone = "UTC"

// Bucket layouts accepted by WithBucket.
const (
	BucketDate  = staleness.DefaultLayout
	BucketMonth = "2006-01"
	BucketHour  = "2006-01-02T15"
	BucketTime  = "2006-01-02T15-04-05"
)

var (
	defaultsMu       sync.RWMutex
	defaultRoot      string
	defaultTimezone  string
	defaultStaleness staleness.Window
	defaultLogger    logger.Logger
)

// SetDefaultRoot sets the root used by decorators created without WithRoot.
func SetDefaultRoot(dir string) {
	defaultsMu.Lock()
	defaultRoot = dir
	defaultsMu.Unlock()
}

// DefaultRoot returns the root set by SetDefaultRoot, else $DATACACHE_ROOT,
// else a datacache directory in the user cache dir.
func DefaultRoot() string {
	defaultsMu.RLock()
	root := defaultRoot
	defaultsMu.RUnlock()
	if root != "" {
		return root
	}
	if root := os.Getenv(EnvRoot); root != "" {
		return root
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "datacache")
	}
	return filepath.Join(os.TempDir(), "datacache")
}

// SetDefaultTimezone sets the zone used by decorators created without
// WithTimezone.
func SetDefaultTimezone(name string) {
	defaultsMu.Lock()
	defaultTimezone = name
	defaultsMu.Unlock()
}

// SetDefaultStaleness sets the window used by decorators created without
// WithStaleness.
func SetDefaultStaleness(w staleness.Window) {
	defaultsMu.Lock()
	defaultStaleness = w
	defaultsMu.Unlock()
}

// SetDefaultLogger sets the logger used by decorators created without
// WithLogger.
func SetDefaultLogger(l logger.Logger) {
	defaultsMu.Lock()
	defaultLogger = l
	defaultsMu.Unlock()
}

// config holds the resolved configuration for a Decorator.
type config struct {
	params     []Param
	root       string
	pathFormat string
	window     staleness.Window
	load       serializer.LoadFunc
	save       serializer.SaveFunc
	builder    PathBuilder
	bucket     string
	timezone   string
	appendMode bool
	dropDups   []string
	registry   *serializer.Registry
	logger     logger.Logger
	clock      func() time.Time
	err        error
}

// Option configures a Decorator.
type Option func(*config)

func defaultConfig() config {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	tz := defaultTimezone
	if tz == "" {
		tz = DefaultTimezone
	}
	return config{
		pathFormat: DefaultPathFormat,
		window:     defaultStaleness,
		bucket:     BucketDate,
		timezone:   tz,
		logger:     defaultLogger,
		clock:      time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.root == "" {
		cfg.root = DefaultRoot()
	}
	if cfg.registry == nil {
		cfg.registry = serializer.Default()
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger()
	}
	return cfg
}

// WithParams declares the fetcher's parameters. Positional call arguments
// fill them in order. Without declared parameters only named arguments are
// accepted and every name is passed through.
func WithParams(params ...Param) Option {
	return func(c *config) { c.params = append(c.params, params...) }
}

// WithRoot sets the directory relative paths are placed under.
func WithRoot(dir string) Option {
	return func(c *config) { c.root = dir }
}

// WithPathFormat sets the path template. Defaults to DefaultPathFormat.
func WithPathFormat(format string) Option {
	return func(c *config) { c.pathFormat = format }
}

// WithStaleness sets the window inside which files from earlier buckets are
// reused. The zero window disables reuse.
func WithStaleness(w staleness.Window) Option {
	return func(c *config) { c.window = w }
}

// WithStalenessString is like WithStaleness with a window such as "2d" or
// "1M". A malformed window makes New fail.
func WithStalenessString(s string) Option {
	return func(c *config) {
		w, err := staleness.ParseWindow(s)
		if err != nil && c.err == nil {
			c.err = err
		}
		c.window = w
	}
}

// WithLoad replaces the registry lookup when reading cache files.
func WithLoad(fn serializer.LoadFunc) Option {
	return func(c *config) { c.load = fn }
}

// WithSave replaces the registry lookup when writing cache files.
func WithSave(fn serializer.SaveFunc) Option {
	return func(c *config) { c.save = fn }
}

// WithPathBuilder computes the path from the bound arguments, bypassing the
// template. Staleness scanning needs a template and is skipped.
func WithPathBuilder(fn PathBuilder) Option {
	return func(c *config) { c.builder = fn }
}

// WithBucket sets the time layout of the date placeholder. Defaults to
// BucketDate.
func WithBucket(layout string) Option {
	return func(c *config) { c.bucket = layout }
}

// WithTimezone sets the IANA zone the bucket is computed in.
func WithTimezone(name string) Option {
	return func(c *config) { c.timezone = name }
}

// WithAppend merges fetched rows into the existing file instead of replacing
// it, keeping the first row for each distinct dropDups key.
func WithAppend(dropDups ...string) Option {
	return func(c *config) {
		c.appendMode = true
		c.dropDups = dropDups
	}
}

// WithRegistry sets the serializer registry. Defaults to serializer.Default().
func WithRegistry(r *serializer.Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock sets the time source used for buckets and freshness.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.clock = now }
}

// PathBuilder computes a cache path directly from the bound arguments.
type PathBuilder func(args Bound) (string, error)

// Fetcher retrieves fresh data for the bound arguments.
type Fetcher func(ctx context.Context, args Bound) (*frame.Frame, error)

// callConfig holds the per-call cache controls.
type callConfig struct {
	reload   bool
	timezone string
	level    *logger.LogLevel
}

// CallOption controls one call. Call options are never passed to the
// fetcher.
type CallOption func(*callConfig)

// Reload ignores any cached file, fetches and overwrites it.
func Reload() CallOption {
	return func(c *callConfig) { c.reload = true }
}

// InTimezone computes the bucket in the named zone for this call.
func InTimezone(name string) CallOption {
	return func(c *callConfig) { c.timezone = name }
}

// WithLogLevel sets the log level for this call.
func WithLogLevel(level logger.LogLevel) CallOption {
	return func(c *callConfig) { c.level = &level }
}
