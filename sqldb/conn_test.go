package sqldb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"querymix-bench/bench"
)

func TestProject(t *testing.T) {
	tests := map[string]struct {
		want     []string
		pick     []int
		names    []string
		notFound bool
	}{
		"all columns": {pick: []int{0, 1, 2}, names: []string{"id", "label", "price"}},
		"reordered":   {want: []string{"price", "id"}, pick: []int{2, 0}, names: []string{"price", "id"}},
		"missing":     {want: []string{"weight"}, notFound: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			pick, names, err := project([]string{"id", "label", "price"}, tc.want)
			if tc.notFound {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.pick, pick)
			assert.Equal(t, tc.names, names)
		})
	}
}

func TestUnclassifiedErrorsAreConnectionLoss(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	c := New(db, time.Second, nil)
	q := &bench.Bound{Query: &bench.Query{Name: "query1", Type: bench.SelectType}, Text: "SELEC 1"}
	_, err = c.Execute(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Execute(ctx, &bench.Bound{Query: q.Query, Text: "SELECT 1"})
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
