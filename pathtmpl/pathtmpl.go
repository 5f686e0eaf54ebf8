// Package pathtmpl renders cache file paths from named-placeholder templates.
//
// Two placeholder forms share one value namespace:
//
//	{name}         rendered immediately
//	{name:-value}  rendered immediately, falling back to a literal default
//	[name]         rendered on demand; when scanning for historical files the
//	               token becomes a capture group instead of a value
//
// Every substituted value is sanitized so the rendered path is valid on any
// filesystem regardless of argument content.
package pathtmpl

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnresolvedPlaceholder is returned when a placeholder has no value.
	ErrUnresolvedPlaceholder = errors.New("unresolved path placeholder")
	// ErrMalformed is returned for templates with unbalanced braces.
	ErrMalformed = errors.New("malformed path template")
)

// HashKey is the placeholder name conventionally bound to HashInfo output.
const HashKey = "hash_key"

var re = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^{}]*))?\}|\[([A-Za-z_][A-Za-z0-9_]*)\]`)

var sanitizer = strings.NewReplacer(
	"/", "_",
	`\`, "_",
	":", "-",
	"*", "@",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// Sanitize replaces characters that are unsafe in a file name.
func Sanitize(val string) string {
	return sanitizer.Replace(val)
}

type token struct {
	literal string
	name    string
	def     string
	hasDef  bool
	bracket bool
}

func (t token) isPlaceholder() bool {
	return t.name != ""
}

// Template is a parsed, immutable path template.
type Template struct {
	format string
	tokens []token
}

// Parse parses format into a Template.
func Parse(format string) (*Template, error) {
	t := &Template{format: format}
	last := 0
	for _, m := range re.FindAllStringSubmatchIndex(format, -1) {
		if err := t.addLiteral(format[last:m[0]]); err != nil {
			return nil, err
		}
		switch {
		case m[2] >= 0:
			tok := token{name: format[m[2]:m[3]]}
			if m[4] >= 0 {
				tok.def = format[m[4]:m[5]]
				tok.hasDef = true
			}
			t.tokens = append(t.tokens, tok)
		default:
			t.tokens = append(t.tokens, token{name: format[m[6]:m[7]], bracket: true})
		}
		last = m[1]
	}
	if err := t.addLiteral(format[last:]); err != nil {
		return nil, err
	}
	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(format string) *Template {
	t, err := Parse(format)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) addLiteral(lit string) error {
	if lit == "" {
		return nil
	}
	if strings.ContainsAny(lit, "{}") {
		return errors.Wrapf(ErrMalformed, "%q", t.format)
	}
	t.tokens = append(t.tokens, token{literal: lit})
	return nil
}

// String returns the original format.
func (t *Template) String() string {
	return t.format
}

// WithBase returns a copy of the template rooted at dir. Absolute templates
// and an empty dir are returned unchanged.
func (t *Template) WithBase(dir string) *Template {
	if dir == "" || filepath.IsAbs(t.prefixLiteral()) {
		return t
	}
	base := filepath.Clean(dir)
	if !strings.HasSuffix(base, string(filepath.Separator)) {
		base += string(filepath.Separator)
	}
	tokens := make([]token, 0, len(t.tokens)+1)
	tokens = append(tokens, token{literal: base})
	tokens = append(tokens, t.tokens...)
	return &Template{format: filepath.Join(base, t.format), tokens: tokens}
}

func (t *Template) prefixLiteral() string {
	if len(t.tokens) > 0 && !t.tokens[0].isPlaceholder() {
		return t.tokens[0].literal
	}
	return ""
}

// Names returns the distinct placeholder names in order of appearance.
func (t *Template) Names() []string {
	var names []string
	seen := make(map[string]bool)
	for _, tok := range t.tokens {
		if tok.isPlaceholder() && !seen[tok.name] {
			seen[tok.name] = true
			names = append(names, tok.name)
		}
	}
	return names
}

// Has returns true if the template references name in either form.
func (t *Template) Has(name string) bool {
	for _, tok := range t.tokens {
		if tok.name == name {
			return true
		}
	}
	return false
}

// HasDefault returns true if name appears as {name:-default}.
func (t *Template) HasDefault(name string) bool {
	for _, tok := range t.tokens {
		if tok.hasDef && tok.name == name {
			return true
		}
	}
	return false
}

// IsBracketed returns true if name appears as an on-demand [name] token.
func (t *Template) IsBracketed(name string) bool {
	for _, tok := range t.tokens {
		if tok.bracket && tok.name == name {
			return true
		}
	}
	return false
}

func (t *Template) value(tok token, values map[string]string) (string, error) {
	if v, ok := values[tok.name]; ok {
		return Sanitize(v), nil
	}
	if tok.hasDef {
		return Sanitize(tok.def), nil
	}
	return "", errors.Wrapf(ErrUnresolvedPlaceholder, "%q in %q", tok.name, t.format)
}

// Render substitutes every placeholder from values.
func (t *Template) Render(values map[string]string) (string, error) {
	var sb strings.Builder
	for _, tok := range t.tokens {
		if !tok.isPlaceholder() {
			sb.WriteString(tok.literal)
			continue
		}
		v, err := t.value(tok, values)
		if err != nil {
			return "", err
		}
		sb.WriteString(v)
	}
	return filepath.Clean(sb.String()), nil
}

// Render parses format and renders it with values.
func Render(format string, values map[string]string) (string, error) {
	t, err := Parse(format)
	if err != nil {
		return "", err
	}
	return t.Render(values)
}

func (t *Template) isVar(tok token, vars []string) bool {
	if !tok.isPlaceholder() {
		return false
	}
	if len(vars) == 0 {
		return tok.bracket
	}
	for _, v := range vars {
		if v == tok.name {
			return true
		}
	}
	return false
}

// marker stands in for a variable token while a scan path is cleaned. NUL
// cannot occur in a file name.
const marker = "\x00"

// skeleton renders every non-variable token, leaves a marker around the name
// of each variable token and cleans the result the way Render does, so scan
// patterns and roots line up with rendered paths.
func (t *Template) skeleton(values map[string]string, vars []string) (string, error) {
	var sb strings.Builder
	for _, tok := range t.tokens {
		switch {
		case !tok.isPlaceholder():
			sb.WriteString(tok.literal)
		case t.isVar(tok, vars):
			sb.WriteString(marker + tok.name + marker)
		default:
			v, err := t.value(tok, values)
			if err != nil {
				return "", err
			}
			sb.WriteString(strings.ReplaceAll(v, marker, ""))
		}
	}
	return filepath.ToSlash(filepath.Clean(sb.String())), nil
}

// Pattern converts the template into a regular expression that matches
// slash-separated paths. The placeholders named in vars, in either form,
// become named capture groups matching within one path segment; with no vars
// every [name] token does. All other placeholders are rendered from values.
func (t *Template) Pattern(values map[string]string, vars ...string) (*regexp.Regexp, error) {
	skel, err := t.skeleton(values, vars)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString("^")
	named := make(map[string]bool)
	// Parts alternate literal text and variable names.
	for i, part := range strings.Split(skel, marker) {
		switch {
		case i%2 == 0:
			sb.WriteString(regexp.QuoteMeta(part))
		case named[part]:
			sb.WriteString(`(?:[^/]+)`)
		default:
			named[part] = true
			fmt.Fprintf(&sb, `(?P<%s>[^/]+)`, part)
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// ScanRoot returns the directory that contains every file the template can
// produce when the variable tokens vary: the rendered text before the first
// variable token, cut back to its last separator. ok is false if the
// template has no variable token.
func (t *Template) ScanRoot(values map[string]string, vars ...string) (dir string, ok bool, err error) {
	skel, err := t.skeleton(values, vars)
	if err != nil {
		return "", false, err
	}
	prefix, _, found := strings.Cut(skel, marker)
	if !found {
		return "", false, nil
	}
	return filepath.Dir(filepath.FromSlash(prefix + "x")), true, nil
}

// HashInfo returns a stable hex digest of info. Map keys are serialized in
// sorted order so equal maps always hash equally.
func HashInfo(info map[string]any) string {
	buf, err := json.Marshal(info)
	if err != nil {
		buf = []byte(fmt.Sprintf("%v", info))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(buf))
}
