package pathtmpl

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		values   map[string]string
		expected string
	}{
		{
			name:     "simple",
			format:   "/data/{typ}/{ticker}.csv",
			values:   map[string]string{"typ": "daily", "ticker": "AAPL"},
			expected: "/data/daily/AAPL.csv",
		},
		{
			name:     "bracket renders like braces",
			format:   "/data/{ticker}/[date].csv",
			values:   map[string]string{"ticker": "AAPL", "date": "2024-01-02"},
			expected: "/data/AAPL/2024-01-02.csv",
		},
		{
			name:     "asterisk",
			format:   "/data/{ticker}.csv",
			values:   map[string]string{"ticker": "E*TRADE"},
			expected: "/data/E@TRADE.csv",
		},
		{
			name:     "slash",
			format:   "/data/{ticker}.csv",
			values:   map[string]string{"ticker": "RDS/A"},
			expected: "/data/RDS_A.csv",
		},
		{
			name:     "backslash and colon",
			format:   "/data/{ticker}.csv",
			values:   map[string]string{"ticker": `A\B:C`},
			expected: "/data/A_B-C.csv",
		},
		{
			name:     "default",
			format:   "/data/{ticker:-ALL}.csv",
			values:   map[string]string{},
			expected: "/data/ALL.csv",
		},
		{
			name:     "value wins over default",
			format:   "/data/{ticker:-ALL}.csv",
			values:   map[string]string{"ticker": "IBM"},
			expected: "/data/IBM.csv",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(tt.format, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestRenderSanitizedSegmentHasNoUnsafeChars(t *testing.T) {
	out, err := Render("/root/{v}.csv", map[string]string{"v": `a/b\c*d:e`})
	require.NoError(t, err)
	segment := out[len("/root/") : len(out)-len(".csv")]
	assert.NotContains(t, segment, "/")
	assert.NotContains(t, segment, `\`)
	assert.NotContains(t, segment, "*")
	assert.NotContains(t, segment, ":")
}

func TestRenderUnresolved(t *testing.T) {
	_, err := Render("/data/{ticker}/[date].csv", map[string]string{"ticker": "AAPL"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedPlaceholder))
	assert.Contains(t, err.Error(), "date")
}

func TestParseMalformed(t *testing.T) {
	for _, format := range []string{"/data/{ticker", "/data/ticker}", "/data/{1bad}"} {
		_, err := Parse(format)
		assert.True(t, errors.Is(err, ErrMalformed), format)
	}
}

func TestLiteralBracketsAreKept(t *testing.T) {
	out, err := Render("/data/[1]/{a}.csv", map[string]string{"a": "x"})
	require.NoError(t, err)
	assert.Equal(t, "/data/[1]/x.csv", out)
}

func TestNamesAndHas(t *testing.T) {
	tmpl := MustParse("{func}/{ticker}/[date]_{ticker}.csv")
	assert.Equal(t, []string{"func", "ticker", "date"}, tmpl.Names())
	assert.True(t, tmpl.Has("date"))
	assert.True(t, tmpl.IsBracketed("date"))
	assert.False(t, tmpl.IsBracketed("ticker"))
	assert.False(t, tmpl.Has("missing"))
	assert.False(t, tmpl.HasDefault("ticker"))
	assert.True(t, MustParse("{src:-bbg}/{ticker}").HasDefault("src"))
}

func TestWithBase(t *testing.T) {
	tmpl := MustParse("{func}/[date].csv").WithBase("/data/cache/")
	out, err := tmpl.Render(map[string]string{"func": "prices", "date": "2024-01-02"})
	require.NoError(t, err)
	assert.Equal(t, "/data/cache/prices/2024-01-02.csv", out)

	abs := MustParse("/abs/{func}.csv")
	assert.Same(t, abs, abs.WithBase("/data"))
}

func TestWithBaseIsNotParsed(t *testing.T) {
	tmpl := MustParse("{func}.csv").WithBase("/data/{weird}")
	out, err := tmpl.Render(map[string]string{"func": "x"})
	require.NoError(t, err)
	assert.Equal(t, "/data/{weird}/x.csv", out)
}

func TestPattern(t *testing.T) {
	tmpl := MustParse("prices/{ticker}/[date].csv").WithBase("/data")
	re, err := tmpl.Pattern(map[string]string{"ticker": "RDS/A"})
	require.NoError(t, err)

	m := re.FindStringSubmatch("/data/prices/RDS_A/2024-01-02.csv")
	require.NotNil(t, m)
	assert.Equal(t, "2024-01-02", m[re.SubexpIndex("date")])

	assert.False(t, re.MatchString("/data/prices/IBM/2024-01-02.csv"))
	assert.False(t, re.MatchString("/data/prices/RDS_A/2024-01-02.json"))
	assert.False(t, re.MatchString("/data/prices/RDS_A/x/2024-01-02.csv"))
}

func TestPatternBraceVar(t *testing.T) {
	tmpl := MustParse("/data/{date}/{date}.csv")
	re, err := tmpl.Pattern(nil, "date")
	require.NoError(t, err)
	m := re.FindStringSubmatch("/data/2024-01-02/2024-01-02.csv")
	require.NotNil(t, m)
	assert.Equal(t, "2024-01-02", m[re.SubexpIndex("date")])
}

func TestPatternUnresolved(t *testing.T) {
	_, err := MustParse("/data/{ticker}/[date].csv").Pattern(nil)
	assert.True(t, errors.Is(err, ErrUnresolvedPlaceholder))
}

func TestScanRoot(t *testing.T) {
	values := map[string]string{"ticker": "AAPL"}

	dir, ok, err := MustParse("/data/{ticker}/[date].csv").ScanRoot(values)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/data/AAPL", dir)

	dir, ok, err = MustParse("/data/{ticker}_[date].csv").ScanRoot(values)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/data", dir)

	_, ok, err = MustParse("/data/{ticker}.csv").ScanRoot(values)
	require.NoError(t, err)
	assert.False(t, ok)

	dir, ok, err = MustParse("/data/{ticker}/{date}.csv").ScanRoot(values, "date")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/data/AAPL", dir)
}

func TestHashInfo(t *testing.T) {
	a := HashInfo(map[string]any{"ticker": "AAPL", "period": "1y"})
	b := HashInfo(map[string]any{"period": "1y", "ticker": "AAPL"})
	c := HashInfo(map[string]any{"ticker": "MSFT", "period": "1y"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestPatternOnlyListedVarsVary(t *testing.T) {
	tmpl := MustParse("/data/[ticker]/[date].csv")
	re, err := tmpl.Pattern(map[string]string{"ticker": "AAPL"}, "date")
	require.NoError(t, err)
	assert.True(t, re.MatchString("/data/AAPL/2024-01-02.csv"))
	assert.False(t, re.MatchString("/data/MSFT/2024-01-02.csv"))

	dir, ok, err := tmpl.ScanRoot(map[string]string{"ticker": "AAPL"}, "date")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/data/AAPL", dir)
}

func TestPatternMatchesCleanedRender(t *testing.T) {
	tests := []struct {
		name   string
		format string
		values map[string]string
	}{
		{"dot prefix", "./{func}/{ticker}/[date].csv", map[string]string{"func": "px", "ticker": "AAPL"}},
		{"double separator", "{func}//{ticker}/[date].csv", map[string]string{"func": "px", "ticker": "AAPL"}},
		{"empty value", "{func}/{ticker}/[date].csv", map[string]string{"func": "px", "ticker": ""}},
		{"parent segment", "{func}/tmp/../{ticker}/[date].csv", map[string]string{"func": "px", "ticker": "AAPL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := MustParse(tt.format).WithBase("/data")
			values := map[string]string{"date": "2024-01-02"}
			for k, v := range tt.values {
				values[k] = v
			}
			path, err := tmpl.Render(values)
			require.NoError(t, err)

			re, err := tmpl.Pattern(tt.values)
			require.NoError(t, err)
			m := re.FindStringSubmatch(filepath.ToSlash(path))
			require.NotNil(t, m, "%s does not match %s", path, re)
			assert.Equal(t, "2024-01-02", m[re.SubexpIndex("date")])

			dir, ok, err := tmpl.ScanRoot(tt.values)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, filepath.Dir(path), dir)
		})
	}
}
