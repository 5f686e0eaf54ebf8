package store

import (
	"sync"
	"time"

	"github.com/agentuity/go-datacache/logger"
	"github.com/cockroachdb/errors"
)

// Config identifies a handle. Equal configs share one handle.
type Config struct {
	Path      string
	KeepAlive bool
}

type options struct {
	logger logger.Logger
	driver string
	clock  func() time.Time
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger handles report close failures to.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDriver sets the database/sql driver name. Defaults to "sqlite".
func WithDriver(name string) Option {
	return func(o *options) { o.driver = name }
}

// WithClock sets the time source SelectRecent measures windows from.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Registry hands out one Handle per Config.
type Registry struct {
	mu      sync.Mutex
	opts    options
	handles map[Config]*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	o := options{driver: "sqlite", clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewConsoleLogger()
	}
	return &Registry{opts: o, handles: make(map[Config]*Handle)}
}

// Acquire returns the handle for cfg, creating it on first use. No
// connection is opened until the handle is used.
func (r *Registry) Acquire(cfg Config) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[cfg]; ok {
		return h
	}
	h := &Handle{
		cfg:    cfg,
		driver: r.opts.driver,
		clock:  r.opts.clock,
		logger: r.opts.logger.WithPrefix("[store]").With(map[string]interface{}{"db": cfg.Path}),
	}
	r.handles[cfg] = h
	return h
}

// Len returns the number of handles held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close closes every handle and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[Config]*Handle)
	r.mu.Unlock()

	var err error
	for _, h := range handles {
		err = errors.CombineErrors(err, h.Close(false))
	}
	return err
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Acquire returns the handle for cfg from the process-wide registry.
func Acquire(cfg Config) *Handle {
	return Default().Acquire(cfg)
}

// CloseAll closes every handle in the process-wide registry.
func CloseAll() error {
	return Default().Close()
}
