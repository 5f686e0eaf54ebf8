package staleness

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
)

// ErrInvalidWindow is returned when a staleness window cannot be parsed.
var ErrInvalidWindow = errors.New("invalid staleness window")

// Window is a freshness window. Calendar units (months, quarters, years) are
// kept separate from the fixed-length part so that "1M" means one calendar
// month back from the evaluation time, not 30 days.
type Window struct {
	months int
	fixed  time.Duration
	text   string
}

// Of returns a fixed-length window.
func Of(d time.Duration) Window {
	if d <= 0 {
		return Window{}
	}
	return Window{fixed: d, text: str2duration.String(d)}
}

// Months returns a calendar window of n months.
func Months(n int) Window {
	if n <= 0 {
		return Window{}
	}
	return Window{months: n, text: strconv.Itoa(n) + "M"}
}

var windowPart = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([A-Za-zµ]+)`)

var calendarUnits = map[string]int{
	"M": 1, "mo": 1, "mon": 1, "month": 1, "months": 1,
	"Q": 3, "q": 3, "quarter": 3, "quarters": 3,
	"Y": 12, "y": 12, "yr": 12, "year": 12, "years": 12,
}

var fixedUnits = map[string]string{
	"w": "w", "wk": "w", "week": "w", "weeks": "w",
	"d": "d", "D": "d", "day": "d", "days": "d",
	"h": "h", "H": "h", "hr": "h", "hour": "h", "hours": "h",
	"m": "m", "min": "m", "minute": "m", "minutes": "m",
	"s": "s", "sec": "s", "second": "s", "seconds": "s",
	"ms": "ms", "us": "us", "µs": "µs", "ns": "ns",
}

// ParseWindow parses strings such as "2d", "1w", "36h", "1M", "1Q", "1Y",
// "1 month" or "1w2d". Upper-case M is months, lower-case m is minutes. The
// empty string is the zero (disabled) window.
func ParseWindow(s string) (Window, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return Window{}, nil
	}
	matches := windowPart.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Window{}, errors.Wrapf(ErrInvalidWindow, "%q", s)
	}
	var w Window
	var fixed strings.Builder
	last := 0
	for _, m := range matches {
		if strings.TrimSpace(text[last:m[0]]) != "" {
			return Window{}, errors.Wrapf(ErrInvalidWindow, "%q", s)
		}
		last = m[1]
		num, unit := text[m[2]:m[3]], text[m[4]:m[5]]
		if months, ok := calendarUnits[unit]; ok {
			n, err := strconv.Atoi(num)
			if err != nil {
				return Window{}, errors.Wrapf(ErrInvalidWindow, "%q: calendar units must be whole numbers", s)
			}
			w.months += n * months
			continue
		}
		short, ok := fixedUnits[unit]
		if !ok {
			return Window{}, errors.Wrapf(ErrInvalidWindow, "%q: unknown unit %q", s, unit)
		}
		fixed.WriteString(num + short)
	}
	if strings.TrimSpace(text[last:]) != "" {
		return Window{}, errors.Wrapf(ErrInvalidWindow, "%q", s)
	}
	if fixed.Len() > 0 {
		d, err := str2duration.ParseDuration(fixed.String())
		if err != nil {
			return Window{}, errors.Wrapf(ErrInvalidWindow, "%q: %s", s, err)
		}
		w.fixed = d
	}
	if w.IsZero() {
		return Window{}, nil
	}
	w.text = text
	return w, nil
}

// MustParseWindow is like ParseWindow but panics on error.
func MustParseWindow(s string) Window {
	w, err := ParseWindow(s)
	if err != nil {
		panic(err)
	}
	return w
}

// IsZero returns true for the disabled window.
func (w Window) IsZero() bool {
	return w.months == 0 && w.fixed == 0
}

// Cutoff returns the oldest instant still inside the window ending at now.
func (w Window) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, -w.months, 0).Add(-w.fixed)
}

// Fresh returns true if now - modified < window. The zero window is never
// fresh.
func (w Window) Fresh(modified, now time.Time) bool {
	if w.IsZero() {
		return false
	}
	return modified.After(w.Cutoff(now))
}

// Approx returns the window as a duration, counting a month as 30 days.
func (w Window) Approx() time.Duration {
	return time.Duration(w.months)*30*24*time.Hour + w.fixed
}

func (w Window) String() string {
	if w.IsZero() {
		return ""
	}
	return w.text
}
