// Package sqldb executes workload queries over database/sql. The MySQL and
// embedded adapters share it.
package sqldb

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"

	"querymix-bench/bench"
)

type Options struct {
	Driver  string
	DSN     string
	Timeout time.Duration // per query; zero disables
	MaxOpen int

	// IsQueryError reports whether err was raised by the server for this
	// statement and leaves the connection usable.
	IsQueryError func(err error) bool
}

type Conn struct {
	db           *sql.DB
	timeout      time.Duration
	isQueryError func(error) bool
	closeOnce    sync.Once
	closeErr     error
}

func Open(ctx context.Context, o Options) (*Conn, error) {
	db, err := sql.Open(o.Driver, o.DSN)
	if err != nil {
		return nil, err
	}
	if o.MaxOpen < 1 {
		o.MaxOpen = 2
	}
	db.SetMaxOpenConns(o.MaxOpen)
	db.SetMaxIdleConns(o.MaxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connecting to %s", o.Driver)
	}
	return New(db, o.Timeout, o.IsQueryError), nil
}

// New wraps an open handle. Conn takes ownership and closes it.
func New(db *sql.DB, timeout time.Duration, isQueryError func(error) bool) *Conn {
	if isQueryError == nil {
		isQueryError = func(error) bool { return false }
	}
	return &Conn{db: db, timeout: timeout, isQueryError: isQueryError}
}

func (c *Conn) DB() *sql.DB {
	return c.db
}

func (c *Conn) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Conn) Execute(ctx context.Context, b *bench.Bound) (bench.Outcome, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	start := time.Now()
	var (
		n   int
		err error
	)
	if b.Query.Type == bench.SelectType {
		n, err = c.countRows(qctx, b.Text)
	} else {
		var res sql.Result
		res, err = c.db.ExecContext(qctx, b.Text)
		if err == nil {
			affected, _ := res.RowsAffected()
			n = int(affected)
		}
	}
	elapsed := time.Since(start)

	if err == nil {
		return bench.Outcome{Elapsed: elapsed, Result: n}, nil
	}
	return c.classify(ctx, qctx, elapsed, err)
}

func (c *Conn) classify(ctx, qctx context.Context, elapsed time.Duration, err error) (bench.Outcome, error) {
	switch {
	case ctx.Err() != nil:
		return bench.Outcome{}, ctx.Err()
	case qctx.Err() == context.DeadlineExceeded:
		return bench.Outcome{Elapsed: elapsed, TimedOut: true, Err: err}, nil
	case c.isQueryError(err):
		return bench.Outcome{Elapsed: elapsed, Failed: true, Err: err}, nil
	}
	return bench.Outcome{}, errors.Wrap(err, "connection lost")
}

func (c *Conn) countRows(ctx context.Context, text string) (int, error) {
	rows, err := c.db.QueryContext(ctx, text)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

// Validate renders a SELECT result as strings. Other statements are executed
// and yield no canonical form.
func (c *Conn) Validate(ctx context.Context, b *bench.Bound) (*bench.Canonical, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	if b.Query.Type != bench.SelectType {
		_, err := c.db.ExecContext(qctx, b.Text)
		return nil, err
	}

	rows, err := c.db.QueryContext(qctx, b.Text)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	pick, names, err := project(cols, b.Query.RowNames)
	if err != nil {
		return nil, errors.Wrap(err, b.Query.Name)
	}

	out := &bench.Canonical{Columns: names}
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, len(pick))
		for i, j := range pick {
			row[i] = vals[j].String
			out.Size += len(vals[j].String)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

// project maps the wanted column names onto result positions. No names means
// every column.
func project(cols, want []string) ([]int, []string, error) {
	if len(want) == 0 {
		pick := make([]int, len(cols))
		for i := range cols {
			pick[i] = i
		}
		return pick, cols, nil
	}
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	pick := make([]int, 0, len(want))
	for _, w := range want {
		i, ok := pos[w]
		if !ok {
			return nil, nil, errors.Errorf("result has no column %q", w)
		}
		pick = append(pick, i)
	}
	return pick, want, nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.db.Close() })
	return c.closeErr
}
