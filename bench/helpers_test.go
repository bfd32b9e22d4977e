package bench

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeConn answers every query with a fixed latency and result size.
type fakeConn struct {
	latency time.Duration
	result  int

	failAfter int // connection error once this many queries ran; 0 never
	rejected  map[int]bool

	calls    int
	executed []string
	closed   bool
}

func (c *fakeConn) Execute(ctx context.Context, b *Bound) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	c.calls++
	if c.failAfter > 0 && c.calls > c.failAfter {
		return Outcome{}, errors.New("connection reset")
	}
	c.executed = append(c.executed, b.Query.Name)
	if c.rejected[b.Query.Key.Nr] {
		return Outcome{Elapsed: c.latency, Failed: true, Err: errors.New("syntax error")}, nil
	}
	return Outcome{Elapsed: c.latency, Result: c.result}, nil
}

func (c *fakeConn) Validate(ctx context.Context, b *Bound) (*Canonical, error) {
	c.calls++
	if b.Query.Type != SelectType {
		return nil, nil
	}
	return &Canonical{Columns: []string{"text"}, Rows: [][]string{{b.Text}}}, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type countingPool struct {
	calls int
}

func (p *countingPool) ParametersForQuery(q *Query) ([]Param, error) {
	p.calls++
	return []Param{{Name: "id", Value: fmt.Sprint(p.calls)}}, nil
}

// newTestWorkload builds a single-mix workload from a run order. Queries
// listed in updates are update queries.
func newTestWorkload(t *testing.T, order []int, updates ...int) *Workload {
	t.Helper()
	isUpdate := map[int]bool{}
	for _, nr := range updates {
		isUpdate[nr] = true
	}
	seen := map[int]bool{}
	size := 0
	var queries []*Query
	for _, nr := range order {
		if nr > size {
			size = nr
		}
		if seen[nr] {
			continue
		}
		seen[nr] = true
		q := &Query{
			Key:      Key{Mix: 0, Nr: nr},
			Index:    nr,
			Name:     fmt.Sprintf("query%d", nr),
			Group:    "explore",
			Template: fmt.Sprintf("SELECT %d WHERE id = %%id%%", nr),
		}
		if isUpdate[nr] {
			q.Type = UpdateType
		}
		queries = append(queries, q)
	}
	w, err := NewWorkload(queries, []Segment{{Mix: 0, Group: "explore", Order: order}}, size)
	require.NoError(t, err)
	return w
}
