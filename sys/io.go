package sys

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Exists returns true if the filename or directory exists.
func Exists(fn string) bool {
	_, err := os.Stat(fn)
	return err == nil
}

// IsFile returns true if fn exists and is a regular file.
func IsFile(fn string) bool {
	info, err := os.Stat(fn)
	return err == nil && info.Mode().IsRegular()
}

// ModTime returns the modification time of fn.
func ModTime(fn string) (time.Time, error) {
	info, err := os.Stat(fn)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// EnsureDir creates dir and any missing parents. It is safe to call
// concurrently and repeatedly on the same path.
func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		// another process may have created it between our checks
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return nil
		}
		return errors.Wrapf(err, "create directory %s", dir)
	}
	return nil
}

// EnsureParentDir creates the parent directory of the file fn.
func EnsureParentDir(fn string) error {
	return EnsureDir(filepath.Dir(fn))
}

// WriteFileAtomic writes fn through a uniquely named temp file in the same
// directory followed by a rename, so readers never see a partial file and
// concurrent writers resolve as last-writer-wins.
func WriteFileAtomic(fn string, write func(tmp string) error) error {
	if err := EnsureParentDir(fn); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(fn), "."+filepath.Base(fn)+"."+uuid.NewString()+".tmp")
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, fn); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "rename %s", fn)
	}
	return nil
}

// IsTempFile reports whether name is a temp file produced by WriteFileAtomic.
func IsTempFile(name string) bool {
	base := filepath.Base(name)
	return len(base) > 0 && base[0] == '.' && filepath.Ext(base) == ".tmp"
}

// WalkFiles calls fn for every regular file under root, skipping temp files.
// A missing root is not an error.
func WalkFiles(root string, fn func(path string, info fs.FileInfo) error) error {
	if !Exists(root) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || IsTempFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(path, info)
	})
}
