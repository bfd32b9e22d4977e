package bench

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSink struct {
	results []*Canonical
}

func (s *sliceSink) WriteResult(c *Canonical) error {
	s.results = append(s.results, c)
	return nil
}

func TestQualifyRecordsEveryValidatedQuery(t *testing.T) {
	w := newTestWorkload(t, []int{1, 2, 3}, 3)
	q2, _ := w.Lookup(Key{Mix: 0, Nr: 2})
	q2.Ignored = true

	conn := &fakeConn{}
	sink := &sliceSink{}
	m := NewMix(w, 0)
	require.NoError(t, Qualify(context.Background(), m, &countingPool{}, conn, 4, "", sink))

	// Updates are executed but have no canonical form; ignored queries are
	// skipped.
	assert.Equal(t, 4*2, conn.calls)
	require.Len(t, sink.results, 4)
	for _, r := range sink.results {
		assert.Equal(t, 1, r.Query)
		assert.Equal(t, SelectType, r.Type)
	}
	assert.Equal(t, [][]string{{"SELECT 1 WHERE id = 1"}}, sink.results[0].Rows)
	assert.Equal(t, 0, m.Stats(Key{Mix: 0, Nr: 1}).Count)
}
