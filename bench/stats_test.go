package bench

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestGeoMeanMatchesReference(t *testing.T) {
	tests := map[string][]float64{
		"single":   {0.25},
		"equal":    {0.1, 0.1, 0.1},
		"spread":   {0.001, 0.5, 2, 13.7, 0.04},
		"tiny":     {1e-6, 3e-6, 2e-5},
		"increase": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	for name, xs := range tests {
		t.Run(name, func(t *testing.T) {
			var s QueryStats
			for _, x := range xs {
				s.Add(1, x, 0)
			}
			assert.InEpsilon(t, stat.GeometricMean(xs, nil), s.GeoMean(), 1e-9)
			assert.InEpsilon(t, stat.Mean(xs, nil), s.Mean(), 1e-9)
		})
	}
}

func TestZeroElapsedUsesLogFloor(t *testing.T) {
	var s QueryStats
	s.Add(0, 0, 0)
	require.False(t, math.IsInf(s.SumLog, 0))
	assert.InDelta(t, logFloor, s.GeoMean(), 1e-15)
}

func TestTimeoutCounting(t *testing.T) {
	tests := map[string]struct {
		timeout  float64
		elapsed  []float64
		expected int
	}{
		"no timeout configured": {0, []float64{5, 10}, 0},
		"below":                 {1, []float64{0.2, 0.99}, 0},
		"at and above":          {1, []float64{1, 1.5, 0.5}, 2},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var s QueryStats
			for _, e := range tc.elapsed {
				s.Add(1, e, tc.timeout)
			}
			assert.Equal(t, tc.expected, s.Timeouts)
		})
	}
}

func TestResultStatistics(t *testing.T) {
	var s QueryStats
	for _, r := range []int{7, 3, 11} {
		s.Add(r, 0.1, 0)
	}
	assert.Equal(t, 3, s.MinResult)
	assert.Equal(t, 11, s.MaxResult)
	assert.InDelta(t, 7.0, s.AvgResult(), 1e-12)
}

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := append([]int{}, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestMergeIsOrderIndependent(t *testing.T) {
	w := newTestWorkload(t, []int{1, 2, 3})
	samples := [][]float64{
		{0.1, 0.30000000000000004, 0.7},
		{0.2, 1e-3, 0.33},
		{0.9, 0.05, 0.011},
		{0.4, 0.4, 0.4},
	}

	parts := make([]Result, len(samples))
	for i, xs := range samples {
		m := NewMix(w, 0.5)
		for run := 1; run <= 2; run++ {
			m.SetRun(run)
			for j := 0; m.HasNext(); j++ {
				m.Next()
				m.SetCurrent(i+j, xs[j]*float64(run))
			}
			m.FinishRun()
		}
		parts[i] = m.Result()
	}

	want := Merge(w, parts...)
	for _, perm := range permutations(len(parts)) {
		shuffled := make([]Result, len(parts))
		for i, p := range perm {
			shuffled[i] = parts[p]
		}
		got := Merge(w, shuffled...)
		require.Equal(t, want.Queries, got.Queries, "permutation %v", perm)
		require.Equal(t, want.Mix, got.Mix, "permutation %v", perm)
	}

	assert.Equal(t, 8, want.Mix.Runs)
	assert.Equal(t, 8, want.Queries[Key{Mix: 0, Nr: 1}].Count)
	assert.InDelta(t, 1e-3, want.Queries[Key{Mix: 0, Nr: 2}].Min, 1e-15)
	assert.InDelta(t, 1.8, want.Queries[Key{Mix: 0, Nr: 1}].Max, 1e-12)
	// 0.7*2 and 0.9*2 are at or above the 0.5 timeout, as are 0.4*2 and 0.33*2.
	assert.Greater(t, want.Queries[Key{Mix: 0, Nr: 3}].Timeouts, 0)
}

func TestComputeStatsMultiClientThroughput(t *testing.T) {
	w := newTestWorkload(t, []int{1})
	r := Result{
		Workload:    w,
		Queries:     map[Key]QueryStats{{Mix: 0, Nr: 1}: {Count: 4, Sum: 4, Min: 1, Max: 1}},
		Mix:         MixStats{Runs: 4, Total: 4, Min: 1, Max: 1},
		Clients:     2,
		WallRuntime: 2,
	}
	s := ComputeStats("two", r, RunInfo{ScaleFactor: 100, Warmups: 1, Seed: 3})

	assert.True(t, s.MultiClient())
	assert.InDelta(t, 3600*4/2.0, s.QMpH, 1e-9)
	assert.InDelta(t, 1.0, s.CQET, 1e-12)
	require.Len(t, s.Queries, 1)
	// Two clients busy in parallel double the throughput of a 1s query.
	assert.InDelta(t, 2.0, s.Queries[0].QPS, 1e-12)
}
