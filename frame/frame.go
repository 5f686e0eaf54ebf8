// Package frame provides the tabular payload that flows between fetch
// functions, the serializer registry and the SQLite store.
package frame

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Frame is a column-named table of rows. A nil *Frame is a valid empty frame.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// New returns a frame with the given columns and rows. Short rows are padded
// with nil.
func New(columns []string, rows ...[]any) *Frame {
	f := &Frame{Columns: append([]string(nil), columns...)}
	for _, row := range rows {
		f.Append(row...)
	}
	return f
}

// FromRecords builds a frame from a slice of records. Columns are the sorted
// union of every record's keys.
func FromRecords(records []map[string]any) *Frame {
	seen := make(map[string]bool)
	var columns []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	f := &Frame{Columns: columns}
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// Empty returns true if the frame is nil or has no rows.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Rows) == 0
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	if f == nil {
		return -1
	}
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds a row, padding or truncating it to the column count.
func (f *Frame) Append(values ...any) {
	row := make([]any, len(f.Columns))
	copy(row, values)
	f.Rows = append(f.Rows, row)
}

// Column returns a copy of the values of column name.
func (f *Frame) Column(name string) ([]any, bool) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = cell(row, idx)
	}
	return out, true
}

// Records returns the rows as maps keyed by column name.
func (f *Frame) Records() []map[string]any {
	if f == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(f.Rows))
	for _, row := range f.Rows {
		rec := make(map[string]any, len(f.Columns))
		for i, c := range f.Columns {
			rec[c] = cell(row, i)
		}
		out = append(out, rec)
	}
	return out
}

// Normalize returns a frame whose rows all have exactly one cell per column.
// Short rows are padded with nil and long rows truncated. f itself is
// returned when it is already rectangular.
func (f *Frame) Normalize() *Frame {
	if f == nil {
		return nil
	}
	ragged := false
	for _, row := range f.Rows {
		if len(row) != len(f.Columns) {
			ragged = true
			break
		}
	}
	if !ragged {
		return f
	}
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	for _, row := range f.Rows {
		out.Append(row...)
	}
	return out
}

// Concat returns a new frame with the rows of f followed by the rows of
// other. Columns are the union, in order of first appearance; cells missing
// on either side are nil.
func (f *Frame) Concat(other *Frame) *Frame {
	if f == nil {
		f = &Frame{}
	}
	if other == nil {
		other = &Frame{}
	}
	columns := append([]string(nil), f.Columns...)
	for _, c := range other.Columns {
		if f.Index(c) < 0 {
			columns = append(columns, c)
		}
	}
	out := &Frame{Columns: columns}
	for _, src := range []*Frame{f, other} {
		for _, row := range src.Rows {
			dst := make([]any, len(columns))
			for i, c := range src.Columns {
				dst[indexOf(columns, c)] = cell(row, i)
			}
			out.Rows = append(out.Rows, dst)
		}
	}
	return out
}

// DropDuplicates returns a new frame keeping the first row for each distinct
// key over subset. An empty subset compares whole rows. Unknown columns are
// ignored.
func (f *Frame) DropDuplicates(subset ...string) *Frame {
	if f == nil {
		return nil
	}
	var idx []int
	for _, c := range subset {
		if i := f.Index(c); i >= 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		for i := range f.Columns {
			idx = append(idx, i)
		}
	}
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	seen := make(map[string]bool, len(f.Rows))
	for _, row := range f.Rows {
		key := rowKey(row, idx)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Filter returns a new frame with the rows for which keep returns true.
func (f *Frame) Filter(keep func(rec map[string]any) bool) *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	for _, row := range f.Rows {
		rec := make(map[string]any, len(f.Columns))
		for i, c := range f.Columns {
			rec[c] = cell(row, i)
		}
		if keep(rec) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// String renders a small text table, mostly for logs and the CLI.
func (f *Frame) String() string {
	if f == nil {
		return "<empty>"
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(f.Columns, "\t"))
	for _, row := range f.Rows {
		sb.WriteByte('\n')
		for i, v := range row {
			if i > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(Format(v))
		}
	}
	return sb.String()
}

// Format renders a cell value as text. nil renders as the empty string.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func cell(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

// rowKey identifies the cells at idx. Numbers compare by value, so an int
// from a fetch equals the int64 or whole float64 a file reads back.
func rowKey(row []any, idx []int) string {
	var sb strings.Builder
	for _, i := range idx {
		v := keyValue(cell(row, i))
		fmt.Fprintf(&sb, "%T:%v\x00", v, v)
	}
	return sb.String()
}

func keyValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return keyUint(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return keyUint(n)
	case float32:
		return keyFloat(float64(n))
	case float64:
		return keyFloat(n)
	case []byte:
		return string(n)
	}
	return v
}

func keyUint(n uint64) any {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return n
}

func keyFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
