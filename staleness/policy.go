// Package staleness decides whether an existing cache file is fresh enough
// to reuse.
//
// An exact hit on the resolved path is decided by the caller and never
// expires. This package handles the fallback: when the path template carries
// a date bucket, historical files produced by the same template at other
// buckets are scanned newest first and the first one modified within the
// window is reused.
//
// Templates without the date placeholder are never scanned, whatever the
// window.
package staleness

import (
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/agentuity/go-datacache/pathtmpl"
	"github.com/agentuity/go-datacache/sys"
)

// DefaultDateVar is the placeholder holding the time bucket.
const DefaultDateVar = "date"

// DefaultLayout is the daily bucket layout.
const DefaultLayout = "2006-01-02"

// Policy scans bucketed cache files for a reusable one.
type Policy struct {
	Window   Window
	DateVar  string
	Layout   string
	Location *time.Location
}

// Candidate is a historical cache file sharing the current template.
type Candidate struct {
	Path    string
	Bucket  time.Time
	ModTime time.Time
}

func (p Policy) dateVar() string {
	if p.DateVar == "" {
		return DefaultDateVar
	}
	return p.DateVar
}

func (p Policy) layout() string {
	if p.Layout == "" {
		return DefaultLayout
	}
	return p.Layout
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Enabled returns true if the policy would scan for tmpl.
func (p Policy) Enabled(tmpl *pathtmpl.Template) bool {
	return !p.Window.IsZero() && tmpl != nil && tmpl.Has(p.dateVar())
}

// Candidates returns the files matching tmpl at any bucket inside the window
// and not later than now, newest bucket first. values must resolve every
// placeholder except the date variable.
func (p Policy) Candidates(tmpl *pathtmpl.Template, values map[string]string, now time.Time) ([]Candidate, error) {
	if !p.Enabled(tmpl) {
		return nil, nil
	}
	dateVar, layout, loc := p.dateVar(), p.layout(), p.location()
	re, err := tmpl.Pattern(values, dateVar)
	if err != nil {
		return nil, err
	}
	root, ok, err := tmpl.ScanRoot(values, dateVar)
	if err != nil || !ok {
		return nil, err
	}
	oldest := truncate(p.Window.Cutoff(now), layout, loc)
	newest := truncate(now, layout, loc)
	group := re.SubexpIndex(dateVar)

	var out []Candidate
	err = sys.WalkFiles(root, func(path string, info fs.FileInfo) error {
		m := re.FindStringSubmatch(filepath.ToSlash(path))
		if m == nil {
			return nil
		}
		bucket, err := time.ParseInLocation(layout, m[group], loc)
		if err != nil {
			return nil
		}
		if bucket.Before(oldest) || bucket.After(newest) {
			return nil
		}
		out = append(out, Candidate{Path: path, Bucket: bucket, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Bucket.Equal(out[j].Bucket) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Bucket.After(out[j].Bucket)
	})
	return out, nil
}

// FindReusable returns the newest candidate modified within the window.
func (p Policy) FindReusable(tmpl *pathtmpl.Template, values map[string]string, now time.Time) (string, bool, error) {
	candidates, err := p.Candidates(tmpl, values, now)
	if err != nil {
		return "", false, err
	}
	for _, c := range candidates {
		if p.Window.Fresh(c.ModTime, now) {
			return c.Path, true, nil
		}
	}
	return "", false, nil
}

// IsFresh returns true if the file at path was modified within w of now.
func IsFresh(path string, w Window, now time.Time) (bool, error) {
	mod, err := sys.ModTime(path)
	if err != nil {
		return false, err
	}
	return w.Fresh(mod, now), nil
}

// truncate quantizes t to the bucket granularity implied by layout.
func truncate(t time.Time, layout string, loc *time.Location) time.Time {
	out, err := time.ParseInLocation(layout, t.In(loc).Format(layout), loc)
	if err != nil {
		return t
	}
	return out
}
