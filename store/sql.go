package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidIdentifier is returned for empty table or column names and names
// containing a backtick or NUL.
var ErrInvalidIdentifier = errors.New("invalid sql identifier")

const allTables = "SELECT name FROM sqlite_master WHERE type='table'"

const walMode = "PRAGMA journal_mode=WAL"

// Field is a column and value pair.
type Field struct {
	Column string
	Value  any
}

// F is shorthand for Field{col, val}.
func F(col string, val any) Field {
	return Field{Column: col, Value: val}
}

// Filters are equality conditions joined with AND.
type Filters []Field

// Values are the columns of one row to replace.
type Values []Field

func quoteIdent(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "`\x00") {
		return "", errors.Wrapf(ErrInvalidIdentifier, "%q", name)
	}
	return "`" + name + "`", nil
}

func quoteIdents(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := quoteIdent(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// bindValue normalizes a value before it is bound. Strings lose their double
// quotes and surrounding space, matching their literal rendering.
func bindValue(v any) any {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(strings.ReplaceAll(val, `"`, ""))
	case time.Time:
		return val.Format(time.RFC3339Nano)
	}
	return v
}

// Literal renders v as it appears in statement text: strings are JSON
// string literals with double quotes removed, everything else is its JSON
// form or, failing that, a quoted fmt rendering.
func Literal(v any) string {
	v = bindValue(v)
	if v == nil {
		return "NULL"
	}
	buf, err := json.Marshal(v)
	if err != nil {
		buf, _ = json.Marshal(fmt.Sprint(v))
	}
	return string(buf)
}

func where(cond string, filters Filters, literal bool) (string, []any, error) {
	var parts []string
	var args []any
	if c := strings.TrimSpace(cond); c != "" {
		parts = append(parts, c)
	}
	for _, f := range filters {
		col, err := quoteIdent(f.Column)
		if err != nil {
			return "", nil, err
		}
		if literal {
			parts = append(parts, col+"="+Literal(f.Value))
		} else {
			parts = append(parts, col+"=?")
			args = append(args, bindValue(f.Value))
		}
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func selectQuery(table string, filters Filters, cond string, literal bool) (string, []any, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	w, args, err := where(cond, filters, literal)
	if err != nil {
		return "", nil, err
	}
	return "SELECT * FROM " + t + w, args, nil
}

// SelectStatement renders a SELECT over table with the free-form condition
// cond and the equality filters joined by AND.
//
//	SelectStatement("daily", Filters{F("ticker", "ES1 Index"), F("price", 3000)})
//	// SELECT * FROM `daily` WHERE `ticker`="ES1 Index" AND `price`=3000
func SelectStatement(table string, filters Filters, cond ...string) (string, error) {
	q, _, err := selectQuery(table, filters, strings.Join(cond, " AND "), true)
	return q, err
}

func replaceQuery(table string, columns []string, literals []string) (string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", errors.Newf("replace into %s: no columns", table)
	}
	cols, err := quoteIdents(columns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)", t, strings.Join(cols, ", "), strings.Join(literals, ", ")), nil
}

// ReplaceIntoStatement renders a REPLACE INTO for one row.
func ReplaceIntoStatement(table string, values Values) (string, error) {
	columns := make([]string, len(values))
	literals := make([]string, len(values))
	for i, v := range values {
		columns[i] = v.Column
		literals[i] = Literal(v.Value)
	}
	return replaceQuery(table, columns, literals)
}

func placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "?"
	}
	return out
}
