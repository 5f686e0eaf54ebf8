package store

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectStatement(t *testing.T) {
	tests := []struct {
		name     string
		filters  Filters
		cond     []string
		expected string
	}{
		{
			name:     "no conditions",
			expected: "SELECT * FROM `daily`",
		},
		{
			name:     "filters",
			filters:  Filters{F("ticker", "ES1 Index"), F("price", 3000)},
			expected: "SELECT * FROM `daily` WHERE `ticker`=\"ES1 Index\" AND `price`=3000",
		},
		{
			name:     "condition first",
			filters:  Filters{F("ticker", "ES1 Index")},
			cond:     []string{"price > 3000"},
			expected: "SELECT * FROM `daily` WHERE price > 3000 AND `ticker`=\"ES1 Index\"",
		},
		{
			name:     "condition only",
			cond:     []string{"price > 3000"},
			expected: "SELECT * FROM `daily` WHERE price > 3000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := SelectStatement("daily", tt.filters, tt.cond...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q)
		})
	}
}

func TestReplaceIntoStatement(t *testing.T) {
	q, err := ReplaceIntoStatement("daily", Values{F("ticker", "ES1 Index"), F("price", 3000)})
	require.NoError(t, err)
	assert.Equal(t, "REPLACE INTO `daily` (`ticker`, `price`) VALUES (\"ES1 Index\", 3000)", q)

	_, err = ReplaceIntoStatement("daily", nil)
	assert.Error(t, err)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `"ES1 Index"`, Literal(` ES1 "Index" `))
	assert.Equal(t, `"a\\b"`, Literal(`a\b`))
	assert.Equal(t, "1.5", Literal(1.5))
	assert.Equal(t, "true", Literal(true))
	assert.Equal(t, "NULL", Literal(nil))
	assert.Equal(t, `"(1+2i)"`, Literal(complex(1, 2)))
}

func TestInvalidIdentifier(t *testing.T) {
	_, err := SelectStatement("bad`name", nil)
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	_, err = SelectStatement("", nil)
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	_, err = ReplaceIntoStatement("daily", Values{F("", 1)})
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
}
