package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querymix-bench/bench"
)

func TestRecorderWritesTextfile(t *testing.T) {
	r := NewRecorder()
	q := &bench.Query{Index: 2, Type: bench.SelectType}
	r.ObserveQuery(q, bench.Outcome{Elapsed: 3 * time.Millisecond, Result: 4})
	r.ObserveQuery(q, bench.Outcome{Elapsed: time.Second, TimedOut: true})
	r.ObserveQuery(q, bench.Outcome{Failed: true})
	r.Publish(bench.BenchStats{
		QMpH: 1200,
		CQET: 3,
		Runs: 10,
		Queries: []bench.QueryReport{
			{Index: 1},
			{Index: 2, Count: 10, AQET: 0.3, QPS: 3.33},
		},
	})

	path := filepath.Join(t.TempDir(), "bench.prom")
	require.NoError(t, r.WriteFile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "querymix_qmph 1200")
	assert.Contains(t, out, "querymix_query_mix_runs 10")
	assert.Contains(t, out, `querymix_query_duration_seconds_count{query="2",type="SELECT"} 2`)
	assert.Contains(t, out, `querymix_query_timeouts_total{query="2"} 1`)
	assert.Contains(t, out, `querymix_query_errors_total{query="2"} 1`)
	assert.Contains(t, out, `querymix_aqet_seconds{query="2"} 0.3`)
	assert.NotContains(t, out, `querymix_aqet_seconds{query="1"}`)
}
