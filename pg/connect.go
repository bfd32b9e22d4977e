package pg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"querymix-bench/bench"
)

type Conn struct {
	pool      *pgxpool.Pool
	timeout   time.Duration
	closeOnce sync.Once
}

// Connect opens a small pool for one client. Workload text arrives with
// parameters already substituted, so statements go over the simple protocol
// instead of filling the statement cache.
func Connect(ctx context.Context, endpoint string, timeout time.Duration) (*Conn, error) {
	config, err := pgxpool.ParseConfig(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parsing postgres endpoint")
	}
	config.MaxConns = 2
	config.MinConns = 1
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(cctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return &Conn{pool: pool, timeout: timeout}, nil
}

func IsQueryError(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe)
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
		var rows pgx.Rows
		rows, err = c.pool.Query(qctx, b.Text)
		if err == nil {
			for rows.Next() {
				n++
			}
			rows.Close()
			err = rows.Err()
		}
	} else {
		var tag pgconn.CommandTag
		tag, err = c.pool.Exec(qctx, b.Text)
		n = int(tag.RowsAffected())
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		return bench.Outcome{Elapsed: elapsed, Result: n}, nil
	case ctx.Err() != nil:
		return bench.Outcome{}, ctx.Err()
	case qctx.Err() == context.DeadlineExceeded:
		return bench.Outcome{Elapsed: elapsed, TimedOut: true, Err: err}, nil
	case IsQueryError(err):
		return bench.Outcome{Elapsed: elapsed, Failed: true, Err: err}, nil
	}
	return bench.Outcome{}, errors.Wrap(err, "connection lost")
}

func (c *Conn) Validate(ctx context.Context, b *bench.Bound) (*bench.Canonical, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	if b.Query.Type != bench.SelectType {
		_, err := c.pool.Exec(qctx, b.Text)
		return nil, err
	}

	rows, err := c.pool.Query(qctx, b.Text)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	pos := make(map[string]int, len(fields))
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
		pos[f.Name] = i
	}
	pick := make([]int, 0, len(cols))
	names := cols
	if len(b.Query.RowNames) > 0 {
		names = b.Query.RowNames
		for _, name := range names {
			i, ok := pos[name]
			if !ok {
				return nil, errors.Errorf("%s: result has no column %q", b.Query.Name, name)
			}
			pick = append(pick, i)
		}
	} else {
		for i := range cols {
			pick = append(pick, i)
		}
	}

	out := &bench.Canonical{Columns: names}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]string, len(pick))
		for i, j := range pick {
			if vals[j] != nil {
				row[i] = fmt.Sprint(vals[j])
			}
			out.Size += len(row[i])
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

func (c *Conn) Close() error {
	c.closeOnce.Do(c.pool.Close)
	return nil
}
