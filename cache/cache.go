package cache

import (
	"context"
	"path/filepath"
	"time"

	"github.com/agentuity/go-datacache/frame"
	"github.com/agentuity/go-datacache/logger"
	"github.com/agentuity/go-datacache/pathtmpl"
	"github.com/agentuity/go-datacache/staleness"
	"github.com/agentuity/go-datacache/sys"
	"github.com/cockroachdb/errors"
)

// ErrConfig marks invalid decorator configuration: a malformed template or
// window, an unknown time zone, or a template placeholder no parameter can
// fill.
var ErrConfig = errors.New("invalid cache configuration")

// Reserved template values derived for every call. No argument may use
// these names.
const (
	FuncVar = "func"
	DateVar = staleness.DefaultDateVar
)

func reserved(name string) bool {
	return name == FuncVar || name == DateVar || name == pathtmpl.HashKey
}

// Decorator caches the results of a Fetcher on disk.
type Decorator struct {
	name  string
	fetch Fetcher
	cfg   config
	tmpl  *pathtmpl.Template
	loc   *time.Location
	log   logger.Logger
}

// New returns a Decorator named name around fetch.
func New(name string, fetch Fetcher, opts ...Option) (*Decorator, error) {
	if name == "" {
		return nil, errors.Wrap(ErrConfig, "name is required")
	}
	if fetch == nil {
		return nil, errors.Wrapf(ErrConfig, "%s: fetch function is required", name)
	}
	cfg := applyOptions(opts)
	if cfg.err != nil {
		return nil, errors.Mark(errors.Wrapf(cfg.err, "%s", name), ErrConfig)
	}
	d := &Decorator{
		name:  name,
		fetch: fetch,
		cfg:   cfg,
		log:   cfg.logger.WithPrefix("[cache]").With(map[string]interface{}{"func": name}),
	}
	seen := make(map[string]bool)
	for _, p := range cfg.params {
		if p.Name == "" || seen[p.Name] {
			return nil, errors.Wrapf(ErrConfig, "%s: invalid or duplicate parameter %q", name, p.Name)
		}
		if reserved(p.Name) {
			return nil, errors.Wrapf(ErrConfig, "%s: parameter name %q is reserved", name, p.Name)
		}
		seen[p.Name] = true
	}
	loc, err := loadLocation(cfg.timezone)
	if err != nil {
		return nil, err
	}
	d.loc = loc
	if cfg.builder == nil {
		tmpl, err := pathtmpl.Parse(cfg.pathFormat)
		if err != nil {
			return nil, errors.Mark(err, ErrConfig)
		}
		if len(cfg.params) > 0 {
			for _, n := range tmpl.Names() {
				if !seen[n] && !reserved(n) && !tmpl.HasDefault(n) {
					return nil, errors.Wrapf(ErrConfig, "%s: placeholder %q matches no parameter", name, n)
				}
			}
		}
		d.tmpl = tmpl.WithBase(cfg.root)
	}
	return d, nil
}

// MustNew is like New but panics on error.
func MustNew(name string, fetch Fetcher, opts ...Option) *Decorator {
	d, err := New(name, fetch, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Func is the plain function form of a Decorator.
type Func func(ctx context.Context, args Args, ctl ...CallOption) (*frame.Frame, error)

// Wrap returns the Call method of a new Decorator. It panics if the options
// are invalid.
func Wrap(name string, fetch Fetcher, opts ...Option) Func {
	return MustNew(name, fetch, opts...).Call
}

// Name returns the decorator name.
func (d *Decorator) Name() string {
	return d.name
}

// Root returns the directory relative paths are placed under.
func (d *Decorator) Root() string {
	return d.cfg.root
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "time zone %q", name), ErrConfig)
	}
	return loc, nil
}

// resolved is one call's bound arguments and paths.
type resolved struct {
	args   Bound
	values map[string]string
	now    time.Time
	loc    *time.Location
	path   string
}

func (d *Decorator) resolve(args Args, cc callConfig) (*resolved, error) {
	bound, err := bind(d.cfg.params, args)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", d.name)
	}
	loc := d.loc
	if cc.timezone != "" {
		if loc, err = loadLocation(cc.timezone); err != nil {
			return nil, err
		}
	}
	now := d.cfg.clock()
	r := &resolved{args: bound, now: now, loc: loc}
	if d.cfg.builder != nil {
		path, err := d.cfg.builder(bound)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: build path", d.name)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(d.cfg.root, path)
		}
		r.path = filepath.Clean(path)
		return r, nil
	}
	values := bound.Strings()
	values[FuncVar] = d.name
	values[DateVar] = now.In(loc).Format(d.cfg.bucket)
	values[pathtmpl.HashKey] = pathtmpl.HashInfo(bound.Map())
	r.values = values
	if r.path, err = d.tmpl.Render(values); err != nil {
		return nil, errors.Wrapf(err, "%s", d.name)
	}
	return r, nil
}

func callOptions(ctl []CallOption) callConfig {
	var cc callConfig
	for _, opt := range ctl {
		opt(&cc)
	}
	return cc
}

// Path returns the file a call with args would read or write.
func (d *Decorator) Path(args Args, ctl ...CallOption) (string, error) {
	r, err := d.resolve(args, callOptions(ctl))
	if err != nil {
		return "", err
	}
	return r.path, nil
}

func (d *Decorator) policy(loc *time.Location) staleness.Policy {
	return staleness.Policy{
		Window:   d.cfg.window,
		DateVar:  DateVar,
		Layout:   d.cfg.bucket,
		Location: loc,
	}
}

func (d *Decorator) canLoad(path string) bool {
	return d.cfg.load != nil || d.cfg.registry.Supports(path)
}

func (d *Decorator) canSave(path string) bool {
	return d.cfg.save != nil || d.cfg.registry.Supports(path)
}

// lookup returns cached data for r, or nil on a miss.
func (d *Decorator) lookup(log logger.Logger, r *resolved) *frame.Frame {
	if !d.canLoad(r.path) {
		return nil
	}
	candidates := []string{}
	if sys.IsFile(r.path) {
		candidates = append(candidates, r.path)
	} else if d.tmpl != nil {
		path, ok, err := d.policy(r.loc).FindReusable(d.tmpl, r.values, r.now)
		if err != nil {
			log.Warn("scanning for reusable files failed: %s", err)
		} else if ok {
			candidates = append(candidates, path)
		}
	}
	for _, path := range candidates {
		log.Info("reading data from %s ...", path)
		data, err := d.cfg.registry.Load(path, d.cfg.load)
		if err != nil {
			log.Warn("failed to read %s, fetching instead: %s", path, err)
			continue
		}
		return data
	}
	return nil
}

func (d *Decorator) persist(log logger.Logger, path string, data *frame.Frame) {
	if data.Empty() {
		log.Debug("empty result, nothing saved to %s", path)
		return
	}
	if !d.canSave(path) {
		log.Debug("no format for %s, result not cached", filepath.Ext(path))
		return
	}
	var err error
	if d.cfg.appendMode {
		_, err = d.cfg.registry.Append(data, path, d.cfg.load, d.cfg.save, d.cfg.dropDups...)
	} else {
		err = d.cfg.registry.Save(data, path, d.cfg.save)
	}
	if err != nil {
		log.Error("failed to save data file %s: %s", path, err)
		return
	}
	log.Info("saved data file to %s ...", path)
}

// Call returns cached data for args or fetches, saves and returns it.
func (d *Decorator) Call(ctx context.Context, args Args, ctl ...CallOption) (*frame.Frame, error) {
	cc := callOptions(ctl)
	log := d.log
	if cc.level != nil {
		log = log.WithLevel(*cc.level)
	}
	r, err := d.resolve(args, cc)
	if err != nil {
		return nil, err
	}
	if !cc.reload {
		if data := d.lookup(log, r); data != nil {
			return data, nil
		}
	}
	log.Debug("fetching data for %s", r.path)
	data, err := d.fetch(ctx, r.args)
	if err != nil {
		return nil, err
	}
	d.persist(log, r.path, data)
	return data, nil
}
