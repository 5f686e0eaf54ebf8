package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentuity/go-datacache/frame"
	"github.com/agentuity/go-datacache/logger"
	"github.com/agentuity/go-datacache/staleness"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	r := NewRegistry(WithLogger(log))
	t.Cleanup(func() { r.Close() })
	return r, log
}

func createDaily(t *testing.T, h *Handle) {
	t.Helper()
	_, err := h.Exec(context.Background(), "CREATE TABLE daily (ticker TEXT PRIMARY KEY, price REAL, modified_date TEXT)")
	require.NoError(t, err)
}

func TestAcquireReturnsSameHandle(t *testing.T) {
	r, _ := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "x.db")

	a := r.Acquire(Config{Path: path})
	b := r.Acquire(Config{Path: path})
	c := r.Acquire(Config{Path: path, KeepAlive: true})

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, r.Len())
	assert.False(t, a.IsLive(context.Background()), "acquire does not connect")
}

func TestReplaceIntoOverwrites(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	createDaily(t, h)

	require.NoError(t, h.ReplaceInto(ctx, "daily", Values{F("ticker", "ES1 Index"), F("price", 3000.0)}))
	require.NoError(t, h.ReplaceInto(ctx, "daily", Values{F("ticker", "ES1 Index"), F("price", 3100.0)}))
	require.NoError(t, h.ReplaceInto(ctx, "daily", Values{F("ticker", "NQ1 Index"), F("price", 12000.0)}))

	data, err := h.Select(ctx, "daily", Filters{F("ticker", "ES1 Index")})
	require.NoError(t, err)
	require.Equal(t, 1, data.Len())
	price, _ := data.Column("price")
	assert.Equal(t, 3100.0, price[0])

	all, err := h.Select(ctx, "daily", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Len())
	assert.Equal(t, []string{"ticker", "price", "modified_date"}, all.Columns)

	above, err := h.Select(ctx, "daily", nil, "price > 5000")
	require.NoError(t, err)
	assert.Equal(t, 1, above.Len())

	assert.False(t, h.IsLive(ctx), "connection closed after each operation")
}

func TestTablesAndColumns(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	createDaily(t, h)

	tables, err := h.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily"}, tables)

	cols, err := h.Columns(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker", "price", "modified_date"}, cols)

	cols, err = h.Columns(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestReplaceFrame(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	createDaily(t, h)

	data := frame.New([]string{"ticker", "price"},
		[]any{"AAPL", 1.5},
		[]any{"MSFT", 2.5},
		[]any{"AAPL", 1.75},
	)
	require.NoError(t, h.ReplaceFrame(ctx, "daily", data))
	require.NoError(t, h.ReplaceFrame(ctx, "daily", frame.New([]string{"ticker"})))

	all, err := h.Select(ctx, "daily", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Len())

	aapl, err := h.Select(ctx, "daily", Filters{F("ticker", "AAPL")})
	require.NoError(t, err)
	price, _ := aapl.Column("price")
	assert.Equal(t, []any{1.75}, price)
}

func TestSelectRecent(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	createDaily(t, h)

	now := time.Now()
	require.NoError(t, h.ReplaceInto(ctx, "daily", Values{F("ticker", "OLD"), F("modified_date", now.AddDate(0, -3, 0).Format("2006-01-02"))}))
	require.NoError(t, h.ReplaceInto(ctx, "daily", Values{F("ticker", "NEW"), F("modified_date", now.Format("2006-01-02"))}))

	recent, err := h.SelectRecent(ctx, "daily", staleness.MustParseWindow("1M"), "", nil)
	require.NoError(t, err)
	tickers, _ := recent.Column("ticker")
	assert.Equal(t, []any{"NEW"}, tickers)

	none, err := h.SelectRecent(ctx, "daily", staleness.MustParseWindow("1M"), "no_such_column", nil)
	require.NoError(t, err)
	assert.True(t, none.Empty())
}

func TestKeepAlive(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db"), KeepAlive: true})

	_, err := h.Tables(ctx)
	require.NoError(t, err)
	assert.True(t, h.IsLive(ctx))

	require.NoError(t, h.Close(true))
	assert.True(t, h.IsLive(ctx), "close with keep-alive leaves the connection open")

	require.NoError(t, h.Close(false))
	assert.False(t, h.IsLive(ctx))
	require.NoError(t, h.Close(false), "closing twice is not an error")
}

func TestOperationOnLiveHandleKeepsItOpen(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db")})

	_, err := h.Conn(ctx)
	require.NoError(t, err)
	_, err = h.Tables(ctx)
	require.NoError(t, err)
	assert.True(t, h.IsLive(ctx))
}

func TestScopeCommitsOnError(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	createDaily(t, h)

	boom := errors.New("boom")
	err := h.Scope(ctx, func(ctx context.Context, cur Cursor) error {
		if _, err := cur.ExecContext(ctx, "REPLACE INTO daily (ticker, price) VALUES (?, ?)", "AAPL", 1.5); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.False(t, h.IsLive(ctx))

	data, err := h.Select(ctx, "daily", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, data.Len(), "work done before the failure is committed")
}

func TestScopeKeepAlive(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db"), KeepAlive: true})

	require.NoError(t, h.Scope(ctx, func(ctx context.Context, cur Cursor) error {
		_, err := cur.ExecContext(ctx, "CREATE TABLE t (a INTEGER)")
		return err
	}))
	assert.True(t, h.IsLive(ctx))
}

func TestRegistryClose(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	dir := t.TempDir()
	a := r.Acquire(Config{Path: filepath.Join(dir, "a.db"), KeepAlive: true})
	b := r.Acquire(Config{Path: filepath.Join(dir, "b.db"), KeepAlive: true})
	_, err := a.Conn(ctx)
	require.NoError(t, err)
	_, err = b.Conn(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.False(t, a.IsLive(ctx))
	assert.False(t, b.IsLive(ctx))
	assert.Equal(t, 0, r.Len())
	assert.NotSame(t, a, r.Acquire(Config{Path: filepath.Join(dir, "a.db"), KeepAlive: true}))
}

func TestDefaultRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	h := Acquire(Config{Path: path})
	assert.Same(t, h, Acquire(Config{Path: path}))
	assert.NoError(t, CloseAll())
	assert.Equal(t, 0, Default().Len())
}

func TestOpenFailure(t *testing.T) {
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "missing", "dir", "x.db")})
	_, err := h.Tables(context.Background())
	assert.Error(t, err)
	assert.False(t, h.IsLive(context.Background()))
}

func TestConnEnablesWAL(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db"), KeepAlive: true})

	conn, err := h.Conn(ctx)
	require.NoError(t, err)
	var mode string
	require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestDeadConnectionIsReopened(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db"), KeepAlive: true})
	createDaily(t, h)
	require.True(t, h.IsLive(ctx))

	h.mu.Lock()
	require.NoError(t, h.conn.Close())
	h.mu.Unlock()
	assert.False(t, h.IsLive(ctx))

	tables, err := h.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily"}, tables)
	assert.True(t, h.IsLive(ctx))
}

func TestSelectRecentStartsAtCutoffDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	r := NewRegistry(WithLogger(logger.NewTestLogger()), WithClock(func() time.Time { return now }))
	t.Cleanup(func() { r.Close() })
	h := r.Acquire(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	createDaily(t, h)

	for ticker, date := range map[string]string{
		"BEFORE": "2024-02-14",
		"START":  "2024-02-15",
		"LATE":   "2024-02-15T23:00:00Z",
		"TODAY":  "2024-03-15",
	} {
		require.NoError(t, h.ReplaceInto(ctx, "daily", Values{F("ticker", ticker), F("modified_date", date)}))
	}

	recent, err := h.SelectRecent(ctx, "daily", staleness.MustParseWindow("1M"), "", nil)
	require.NoError(t, err)
	tickers, _ := recent.Column("ticker")
	assert.ElementsMatch(t, []any{"START", "LATE", "TODAY"}, tickers)
}
