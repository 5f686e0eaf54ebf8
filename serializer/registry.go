package serializer

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentuity/go-datacache/frame"
	"github.com/agentuity/go-datacache/sys"
	"github.com/cockroachdb/errors"
)

// ErrUnsupportedFormat is returned when no format is registered for a path's
// extension and no override was given.
var ErrUnsupportedFormat = errors.New("unsupported cache file format")

// LoadFunc reads a frame from path.
type LoadFunc func(path string) (*frame.Frame, error)

// SaveFunc writes data to path.
type SaveFunc func(data *frame.Frame, path string) error

// Format is a load/save pair bound to one or more file extensions.
type Format struct {
	Name       string
	Extensions []string
	Load       LoadFunc
	Save       SaveFunc
}

// Registry maps file extensions to formats.
type Registry struct {
	mu      sync.RWMutex
	formats map[string]Format
}

// NewRegistry returns a registry holding formats.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{formats: make(map[string]Format)}
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the shared registry with the built-in formats.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(Builtins()...)
	})
	return defaultRegistry
}

// Builtins returns the built-in formats.
func Builtins() []Format {
	return []Format{MsgpackFormat, CSVFormat, TSVFormat, JSONFormat, YAMLFormat, XLSXFormat}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Register binds f to each of its extensions, replacing earlier bindings.
func (r *Registry) Register(f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range f.Extensions {
		r.formats[normalizeExt(ext)] = f
	}
}

// Lookup returns the format registered for path's extension.
func (r *Registry) Lookup(path string) (Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[normalizeExt(filepath.Ext(path))]
	return f, ok
}

// Supports returns true if a format is registered for path's extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.Lookup(path)
	return ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.formats))
	for ext := range r.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load reads path with override if given, otherwise with the format
// registered for its extension.
func (r *Registry) Load(path string, override LoadFunc) (*frame.Frame, error) {
	if override != nil {
		return override(path)
	}
	f, ok := r.Lookup(path)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "load %s", path)
	}
	data, err := f.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s file %s", f.Name, path)
	}
	return data, nil
}

// Save writes data to path. Empty data is never written. Parent directories
// are created first. Registered formats write through a temp file and a
// rename; an override is handed the final path directly.
func (r *Registry) Save(data *frame.Frame, path string, override SaveFunc) error {
	if data.Empty() {
		return nil
	}
	data = data.Normalize()
	if override != nil {
		if err := sys.EnsureParentDir(path); err != nil {
			return err
		}
		return override(data, path)
	}
	f, ok := r.Lookup(path)
	if !ok {
		return errors.Wrapf(ErrUnsupportedFormat, "save %s", path)
	}
	if err := sys.WriteFileAtomic(path, func(tmp string) error {
		return f.Save(data, tmp)
	}); err != nil {
		return errors.Wrapf(err, "save %s file %s", f.Name, path)
	}
	return nil
}

// Append merges data into the file at path: existing rows first, then data,
// keeping the first row for each distinct dropDups key when dropDups is set.
// It returns the merged frame. Empty data leaves the file untouched.
func (r *Registry) Append(data *frame.Frame, path string, load LoadFunc, save SaveFunc, dropDups ...string) (*frame.Frame, error) {
	if data.Empty() {
		return data, nil
	}
	merged := data
	if sys.IsFile(path) {
		existing, err := r.Load(path, load)
		if err != nil {
			return nil, err
		}
		merged = existing.Concat(data)
	}
	if len(dropDups) > 0 {
		merged = merged.DropDuplicates(dropDups...)
	}
	if err := r.Save(merged, path, save); err != nil {
		return nil, err
	}
	return merged, nil
}
