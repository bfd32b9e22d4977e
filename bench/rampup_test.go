package bench

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstSteady feeds runtimes to a fresh detector and returns the 1-based
// period at which steady state was declared, or 0.
func firstSteady(t *testing.T, width int, eps float64, runtimes []float64) int {
	t.Helper()
	d := NewDetector(width, eps)
	for i, r := range runtimes {
		steady, err := d.Observe(r)
		require.NoError(t, err)
		if steady {
			return i + 1
		}
	}
	return 0
}

func TestDetectorConvergence(t *testing.T) {
	tests := map[string]struct {
		runtimes []float64
		expected int
	}{
		"flat series converges after one window": {
			runtimes: []float64{10, 10, 10, 10, 10},
			expected: 5,
		},
		"small spread converges": {
			runtimes: []float64{10, 10.4, 10.2, 10.3, 10.1},
			expected: 5,
		},
		"wide spread does not converge": {
			runtimes: []float64{10, 11, 10, 11, 10, 11, 10, 11},
			expected: 0,
		},
		"strictly decreasing never converges": {
			runtimes: []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9.9, 9.8, 9.7, 9.6},
			expected: 0,
		},
		"plateau converges once the last minimum leaves the window": {
			runtimes: []float64{10, 9, 8, 7, 6, 5, 5, 5, 5, 5, 5, 5},
			expected: 11,
		},
		"first period as the minimum never counts as an improvement": {
			runtimes: []float64{9.8, 10, 10.2, 10.1, 10.2},
			expected: 5,
		},
		"all zero periods are steady": {
			runtimes: []float64{0, 0, 0, 0, 0},
			expected: 5,
		},
		"new minimum restarts the wait": {
			runtimes: []float64{10, 10, 10, 10, 9.99, 10, 10, 10, 10, 10},
			expected: 10,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, firstSteady(t, 5, 0.05, tc.runtimes))
		})
	}
}

func TestDetectorTracksGlobalMinimum(t *testing.T) {
	d := NewDetector(2, 0.05)
	for _, r := range []float64{5, 3, 4, 6} {
		_, err := d.Observe(r)
		require.NoError(t, err)
	}
	assert.InDelta(t, 3.0, d.Minimum(), 1e-12)
	assert.Equal(t, 4, d.Periods())
	assert.InDelta(t, 10.0, d.WindowTotal(), 1e-12)
}

func TestDetectorRejectsEmptyWindow(t *testing.T) {
	_, err := NewDetector(0, 0.05).Observe(1)
	require.Error(t, err)
}

func TestRampUpRunsUntilSteady(t *testing.T) {
	w := newTestWorkload(t, []int{1, 2, 3}, 3)
	conn := &fakeConn{latency: 2 * time.Millisecond}
	var out bytes.Buffer
	ru := &RampUp{
		Runner: &Runner{
			Mix:    NewMix(w, 0),
			Pool:   &countingPool{},
			Conn:   conn,
			Params: RunParams{PeriodSize: 4},
		},
		Detector: NewDetector(3, 0.05),
		Out:      &out,
	}

	res, err := ru.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Periods)
	assert.InDelta(t, 3*4*2*0.002, res.Runtime, 1e-9)

	assert.NotContains(t, conn.executed, "query3")
	assert.Equal(t, 3*4*2, conn.calls)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], "3\t"))
}

func TestRampUpStopsOnCancel(t *testing.T) {
	w := newTestWorkload(t, []int{1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ru := &RampUp{
		Runner:   &Runner{Mix: NewMix(w, 0), Pool: &countingPool{}, Conn: &fakeConn{}, Params: RunParams{PeriodSize: 1}},
		Detector: NewDetector(5, 0.05),
		Out:      &bytes.Buffer{},
	}
	_, err := ru.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
