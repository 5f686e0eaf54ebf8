package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/go-datacache/frame"
	"github.com/agentuity/go-datacache/logger"
	"github.com/agentuity/go-datacache/staleness"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// DefaultDateColumn is the column SelectRecent filters on when none is given.
const DefaultDateColumn = "modified_date"

// Cursor runs statements inside a Scope.
type Cursor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ Cursor = (*sql.Tx)(nil)

// Handle owns at most one open connection to a database file.
type Handle struct {
	cfg    Config
	driver string
	logger logger.Logger
	clock  func() time.Time

	mu   sync.Mutex
	db   *sql.DB
	conn *sql.Conn
}

// Config returns the config the handle was acquired with.
func (h *Handle) Config() Config {
	return h.cfg
}

// IsLive returns true if the handle holds a connection that answers a liveness
// query.
func (h *Handle) IsLive(ctx context.Context) bool {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return false
	}
	rows, err := conn.QueryContext(ctx, allTables)
	if err != nil {
		return false
	}
	rows.Close()
	return rows.Err() == nil
}

// Conn returns the open connection, opening a new one if the handle is not
// live.
func (h *Handle) Conn(ctx context.Context) (*sql.Conn, error) {
	if h.IsLive(ctx) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.conn != nil {
			return h.conn, nil
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()

	db, err := sql.Open(h.driver, h.cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", h.cfg.Path)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect %s", h.cfg.Path)
	}
	if _, err := conn.ExecContext(ctx, walMode); err != nil {
		conn.Close()
		db.Close()
		return nil, errors.Wrapf(err, "enable wal on %s", h.cfg.Path)
	}
	h.db, h.conn = db, conn
	h.logger.Trace("opened connection")
	return conn, nil
}

// closeLocked releases the connection. Errors for an already closed
// connection are ignored.
func (h *Handle) closeLocked() error {
	var err error
	if h.conn != nil {
		if cerr := h.conn.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) {
			err = cerr
		}
	}
	if h.db != nil {
		err = errors.CombineErrors(err, h.db.Close())
	}
	h.conn, h.db = nil, nil
	return err
}

// Close closes the connection unless keepAlive is set. Closing a handle that
// is not open is a no-op.
func (h *Handle) Close(keepAlive bool) error {
	if keepAlive {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.closeLocked(); err != nil {
		h.logger.Error("error closing connection: %s", err)
		return errors.Wrapf(err, "close %s", h.cfg.Path)
	}
	return nil
}

// with runs fn on the connection, closing it afterwards unless it was
// already open or the handle is kept alive.
func (h *Handle) with(ctx context.Context, fn func(conn *sql.Conn) error) error {
	wasLive := h.IsLive(ctx)
	conn, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	err = fn(conn)
	if !wasLive {
		if cerr := h.Close(h.cfg.KeepAlive); cerr != nil {
			h.logger.Warn("connection left in an unknown state: %s", cerr)
		}
	}
	return err
}

// Tables lists the tables in the database.
func (h *Handle) Tables(ctx context.Context) ([]string, error) {
	var tables []string
	err := h.with(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, allTables)
		if err != nil {
			return errors.Wrap(err, "list tables")
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			tables = append(tables, name)
		}
		return rows.Err()
	})
	return tables, err
}

// Columns lists the columns of table in declaration order. An unknown table
// has no columns.
func (h *Handle) Columns(ctx context.Context, table string) ([]string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	var columns []string
	err = h.with(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, "PRAGMA table_info("+t+")")
		if err != nil {
			return errors.Wrapf(err, "columns of %s", table)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cid     int
				name    string
				typ     string
				notNull int
				dflt    any
				pk      int
			)
			if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
				return err
			}
			columns = append(columns, name)
		}
		return rows.Err()
	})
	return columns, err
}

// Select returns the rows of table matching every filter and the optional
// free-form conditions.
func (h *Handle) Select(ctx context.Context, table string, filters Filters, cond ...string) (*frame.Frame, error) {
	q, args, err := selectQuery(table, filters, strings.Join(cond, " AND "), false)
	if err != nil {
		return nil, err
	}
	var out *frame.Frame
	err = h.with(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, q, args...)
		if err != nil {
			return errors.Wrapf(err, "select from %s", table)
		}
		defer rows.Close()
		out, err = scanFrame(rows)
		return err
	})
	return out, err
}

// SelectRecent is like Select but only keeps rows whose dateCol is on or
// after the start of the day window.Cutoff(now) falls in, so a window of 1M
// asked on the 15th keeps everything from the 15th of last month at 00:00.
// Dates are compared as ISO-8601 text. A table without dateCol yields an
// empty frame.
func (h *Handle) SelectRecent(ctx context.Context, table string, window staleness.Window, dateCol string, filters Filters) (*frame.Frame, error) {
	if dateCol == "" {
		dateCol = DefaultDateColumn
	}
	cols, err := h.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	found := false
	for _, c := range cols {
		if c == dateCol {
			found = true
			break
		}
	}
	if !found {
		return frame.New(nil), nil
	}
	col, err := quoteIdent(dateCol)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if h.clock != nil {
		now = h.clock
	}
	start := window.Cutoff(now()).Format("2006-01-02")
	return h.Select(ctx, table, filters, col+" >= '"+start+"'")
}

// ReplaceInto inserts or replaces one row.
func (h *Handle) ReplaceInto(ctx context.Context, table string, values Values) error {
	columns := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		columns[i] = v.Column
		args[i] = bindValue(v.Value)
	}
	q, err := replaceQuery(table, columns, placeholders(len(values)))
	if err != nil {
		return err
	}
	return h.with(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrapf(err, "replace into %s", table)
		}
		return nil
	})
}

// ReplaceFrame inserts or replaces every row of data in one transaction.
func (h *Handle) ReplaceFrame(ctx context.Context, table string, data *frame.Frame) error {
	if data.Empty() {
		return nil
	}
	q, err := replaceQuery(table, data.Columns, placeholders(len(data.Columns)))
	if err != nil {
		return err
	}
	return h.with(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "replace into %s", table)
		}
		defer stmt.Close()
		for _, row := range data.Rows {
			args := make([]any, len(row))
			for i, v := range row {
				args[i] = bindValue(v)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				tx.Rollback()
				return errors.Wrapf(err, "replace into %s", table)
			}
		}
		return tx.Commit()
	})
}

// Exec runs an arbitrary statement.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := h.with(ctx, func(conn *sql.Conn) error {
		var err error
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// Scope runs fn inside a transaction. The transaction is committed even if
// fn fails, and the connection is closed afterwards unless the handle is
// kept alive. fn's error is returned; commit and close failures are logged.
func (h *Handle) Scope(ctx context.Context, fn func(ctx context.Context, cur Cursor) error) error {
	conn, err := h.Conn(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		h.Close(h.cfg.KeepAlive)
		return errors.Wrap(err, "begin")
	}
	fnErr := fn(ctx, tx)
	if err := tx.Commit(); err != nil {
		h.logger.Error("commit failed: %s", err)
	}
	if err := h.Close(h.cfg.KeepAlive); err != nil {
		h.logger.Warn("close after scope: %s", err)
	}
	return fnErr
}

func scanFrame(rows *sql.Rows) (*frame.Frame, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := frame.New(columns)
	for rows.Next() {
		row := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}
