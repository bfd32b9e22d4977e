package lite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querymix-bench/bench"
)

func TestDSN(t *testing.T) {
	tests := map[string]struct {
		endpoint string
		expected string
		fails    bool
	}{
		"memory":      {endpoint: "sqlite::memory:", expected: ":memory:"},
		"slashes":     {endpoint: "sqlite:///tmp/bench.db", expected: "/tmp/bench.db"},
		"file uri":    {endpoint: "file:bench.db?mode=ro", expected: "file:bench.db?mode=ro"},
		"other":       {endpoint: "mysql://h/db", fails: true},
		"bare string": {endpoint: "bench.db", fails: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dsn, err := DSN(tc.endpoint)
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, dsn)
		})
	}
}

func query(typ bench.QueryType, text string, rowNames ...string) *bench.Bound {
	return &bench.Bound{Query: &bench.Query{Name: "query1", Type: typ, RowNames: rowNames}, Text: text}
}

func TestConnExecutesAgainstEmbeddedDatabase(t *testing.T) {
	ctx := context.Background()
	c, err := Connect(ctx, "sqlite::memory:", 0)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.DB().ExecContext(ctx, `CREATE TABLE product (id INTEGER PRIMARY KEY, label TEXT, price INTEGER)`)
	require.NoError(t, err)

	out, err := c.Execute(ctx, query(bench.UpdateType, `INSERT INTO product VALUES (1, 'alpha', 10), (2, 'beta', 20), (3, 'gamma', 30)`))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Result)

	out, err = c.Execute(ctx, query(bench.SelectType, `SELECT id FROM product WHERE price > 15`))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Result)
	assert.False(t, out.Failed)

	out, err = c.Execute(ctx, query(bench.SelectType, `SELEC id FROM product`))
	require.NoError(t, err)
	assert.True(t, out.Failed)
	require.Error(t, out.Err)

	res, err := c.Validate(ctx, query(bench.SelectType, `SELECT id, label FROM product ORDER BY id`, "label"))
	require.NoError(t, err)
	assert.Equal(t, []string{"label"}, res.Columns)
	assert.Equal(t, [][]string{{"alpha"}, {"beta"}, {"gamma"}}, res.Rows)
	assert.Equal(t, len("alphabetagamma"), res.Size)

	_, err = c.Validate(ctx, query(bench.SelectType, `SELECT id FROM product`, "missing"))
	require.Error(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
