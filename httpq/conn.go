// Package httpq executes workload queries against an HTTP query endpoint in
// the style of the SPARQL 1.1 protocol: queries by GET, updates by form POST.
package httpq

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"querymix-bench/bench"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	acceptResults = "application/sparql-results+json"
	acceptGraph   = "text/turtle, application/rdf+xml;q=0.9, */*;q=0.1"
)

type Options struct {
	Endpoint       string
	UpdateEndpoint string
	DefaultGraph   string
	UpdateParam    string // form field carrying the update text, default "update"
	Timeout        time.Duration
	Client         *http.Client
}

type Conn struct {
	opts      Options
	client    *http.Client
	closeOnce sync.Once
}

func Open(opts Options) (*Conn, error) {
	for _, ep := range []string{opts.Endpoint, opts.UpdateEndpoint} {
		if ep == "" {
			continue
		}
		u, err := url.Parse(ep)
		if err != nil {
			return nil, errors.Wrap(err, "parsing endpoint")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, errors.Errorf("not an http endpoint: %s", ep)
		}
	}
	if opts.UpdateParam == "" {
		opts.UpdateParam = "update"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}}
	}
	return &Conn{opts: opts, client: client}, nil
}

func (c *Conn) request(ctx context.Context, b *bench.Bound) (*http.Request, error) {
	if b.Query.Type == bench.UpdateType {
		if c.opts.UpdateEndpoint == "" {
			return nil, errors.Errorf("%s is an update but no update endpoint was given", b.Query.Name)
		}
		form := url.Values{c.opts.UpdateParam: {b.Text}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.UpdateEndpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	q := url.Values{"query": {b.Text}}
	if c.opts.DefaultGraph != "" {
		q.Set("default-graph-uri", c.opts.DefaultGraph)
	}
	sep := "?"
	if strings.Contains(c.opts.Endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Endpoint+sep+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if b.Query.Type == bench.SelectType {
		req.Header.Set("Accept", acceptResults)
	} else {
		req.Header.Set("Accept", acceptGraph)
	}
	return req, nil
}

func (c *Conn) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout > 0 {
		return context.WithTimeout(ctx, c.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// do sends the request and reads the whole body. A non-2xx status is a
// query failure, reported through status.
func (c *Conn) do(ctx context.Context, b *bench.Bound) (body []byte, status int, err error) {
	req, err := c.request(ctx, b)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	return body, resp.StatusCode, err
}

func (c *Conn) Execute(ctx context.Context, b *bench.Bound) (bench.Outcome, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	start := time.Now()
	body, status, err := c.do(qctx, b)
	elapsed := time.Since(start)

	if err != nil {
		var ne net.Error
		switch {
		case ctx.Err() != nil:
			return bench.Outcome{}, ctx.Err()
		case qctx.Err() == context.DeadlineExceeded, errors.As(err, &ne) && ne.Timeout():
			return bench.Outcome{Elapsed: elapsed, TimedOut: true, Err: err}, nil
		}
		return bench.Outcome{}, errors.Wrap(err, "connection lost")
	}
	if status < 200 || status > 299 {
		return bench.Outcome{Elapsed: elapsed, Failed: true, Err: statusError(status, body)}, nil
	}

	if b.Query.Type != bench.SelectType {
		return bench.Outcome{Elapsed: elapsed, Result: len(body)}, nil
	}
	bindings := json.Get(body, "results", "bindings")
	if bindings.LastError() != nil || bindings.ValueType() != jsoniter.ArrayValue {
		return bench.Outcome{Elapsed: elapsed, Failed: true, Err: errors.New("malformed result set")}, nil
	}
	return bench.Outcome{Elapsed: elapsed, Result: bindings.Size()}, nil
}

type resultSet struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

func (c *Conn) Validate(ctx context.Context, b *bench.Bound) (*bench.Canonical, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	body, status, err := c.do(qctx, b)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, statusError(status, body)
	}
	switch b.Query.Type {
	case bench.UpdateType:
		return nil, nil
	case bench.SelectType:
	default:
		return &bench.Canonical{Size: len(body)}, nil
	}

	var rs resultSet
	if err := json.Unmarshal(body, &rs); err != nil {
		return nil, errors.Wrap(err, "decoding result set")
	}
	cols := rs.Head.Vars
	if len(b.Query.RowNames) > 0 {
		cols = b.Query.RowNames
	}
	out := &bench.Canonical{Columns: cols, Size: len(body)}
	for _, binding := range rs.Results.Bindings {
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i] = binding[col].Value
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.Errorf("endpoint returned %d %s: %s", status, http.StatusText(status), msg)
}

func (c *Conn) Close() error {
	c.closeOnce.Do(c.client.CloseIdleConnections)
	return nil
}
