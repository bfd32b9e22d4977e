// Package backend picks the adapter for an endpoint.
package backend

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"querymix-bench/bench"
	"querymix-bench/httpq"
	"querymix-bench/lite"
	"querymix-bench/my"
	"querymix-bench/pg"
)

type Kind string

const (
	Postgres Kind = "postgres"
	MySQL    Kind = "mysql"
	SQLite   Kind = "sqlite"
	HTTP     Kind = "http"
)

type Options struct {
	Endpoint       string
	Driver         string // overrides scheme detection
	SQL            bool
	UpdateEndpoint string
	DefaultGraph   string
	UpdateParam    string
	Timeout        time.Duration
}

// Detect resolves the adapter kind from the driver name or endpoint scheme
// and checks it against the query language.
func Detect(o Options) (Kind, error) {
	var kind Kind
	switch strings.ToLower(o.Driver) {
	case "postgres", "postgresql", "pgx":
		kind = Postgres
	case "mysql":
		kind = MySQL
	case "sqlite", "sqlite3":
		kind = SQLite
	case "http", "sparql":
		kind = HTTP
	case "":
		ep := strings.ToLower(o.Endpoint)
		switch {
		case strings.HasPrefix(ep, "postgres://"), strings.HasPrefix(ep, "postgresql://"):
			kind = Postgres
		case strings.HasPrefix(ep, "mysql://"):
			kind = MySQL
		case strings.HasPrefix(ep, "sqlite:"), strings.HasPrefix(ep, "file:"):
			kind = SQLite
		case strings.HasPrefix(ep, "http://"), strings.HasPrefix(ep, "https://"):
			kind = HTTP
		default:
			return "", errors.Errorf("cannot tell the backend of endpoint %q; pass -dbdriver", o.Endpoint)
		}
	default:
		return "", errors.Errorf("unknown driver %q", o.Driver)
	}

	if kind == HTTP && o.SQL {
		return "", errors.Errorf("-sql needs a database endpoint, got %s", o.Endpoint)
	}
	if kind != HTTP && !o.SQL {
		return "", errors.Errorf("endpoint %s is an SQL database; pass -sql", o.Endpoint)
	}
	return kind, nil
}

func Open(ctx context.Context, o Options) (bench.Conn, error) {
	kind, err := Detect(o)
	if err != nil {
		return nil, err
	}
	var conn bench.Conn
	switch kind {
	case Postgres:
		c, cerr := pg.Connect(ctx, o.Endpoint, o.Timeout)
		conn, err = c, cerr
	case MySQL:
		c, cerr := my.Connect(ctx, o.Endpoint, o.Timeout)
		conn, err = c, cerr
	case SQLite:
		c, cerr := lite.Connect(ctx, o.Endpoint, o.Timeout)
		conn, err = c, cerr
	default:
		c, cerr := httpq.Open(httpq.Options{
			Endpoint:       o.Endpoint,
			UpdateEndpoint: o.UpdateEndpoint,
			DefaultGraph:   o.DefaultGraph,
			UpdateParam:    o.UpdateParam,
			Timeout:        o.Timeout,
		})
		conn, err = c, cerr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s backend", kind)
	}
	return conn, nil
}
