package bench

import "fmt"

// Mix walks the configured run order of a workload and accumulates
// per-query and per-mix statistics. A Mix belongs to exactly one client.
//
// Calls follow a strict protocol: SetRun, then HasNext/Next/SetCurrent until
// HasNext is false, then FinishRun. Breaking it is a programming error and
// panics.
type Mix struct {
	workload *Workload
	order    []Key
	timeout  float64

	stats map[Key]*QueryStats
	agg   MixStats

	run     int
	pos     int
	current *Query
	pending bool
	runtime float64
	last    float64
}

// NewMix creates a sequencer over w. Samples at or above timeout count as
// timeouts; a timeout of zero disables the check.
func NewMix(w *Workload, timeoutSeconds float64) *Mix {
	m := &Mix{
		workload: w,
		timeout:  timeoutSeconds,
		stats:    make(map[Key]*QueryStats, len(w.Queries)),
	}
	for _, seg := range w.Segments {
		for _, nr := range seg.Order {
			m.order = append(m.order, Key{Mix: seg.Mix, Nr: nr})
		}
	}
	for _, q := range w.Queries {
		m.stats[q.Key] = &QueryStats{}
	}
	m.pos = len(m.order)
	return m
}

// SetRun rewinds the cursor. Negative runs are warmup runs: they are walked
// and timed but never folded into statistics.
func (m *Mix) SetRun(run int) {
	if m.pending {
		panic("bench: SetRun called with an outcome pending")
	}
	m.run = run
	m.pos = 0
	m.runtime = 0
}

func (m *Mix) HasNext() bool {
	return m.pos < len(m.order)
}

func (m *Mix) Next() *Query {
	if m.pending {
		panic("bench: Next called before the previous outcome was recorded")
	}
	if !m.HasNext() {
		panic("bench: Next called on an exhausted run")
	}
	q, _ := m.workload.Lookup(m.order[m.pos])
	m.pos++
	m.current = q
	m.pending = true
	return q
}

// SetCurrent records the outcome of the query returned by the last Next.
// An elapsed time of Excluded leaves every counter untouched.
func (m *Mix) SetCurrent(result int, elapsedSeconds float64) {
	m.settle()
	if elapsedSeconds == Excluded {
		return
	}
	m.runtime += elapsedSeconds
	if m.run < 0 {
		return
	}
	m.stats[m.current.Key].Add(result, elapsedSeconds, m.timeout)
}

// SetFailed records a query-level backend error for the last Next.
func (m *Mix) SetFailed() {
	m.settle()
	if m.run < 0 {
		return
	}
	m.stats[m.current.Key].Errors++
}

func (m *Mix) settle() {
	if !m.pending {
		panic("bench: outcome recorded without a preceding Next")
	}
	m.pending = false
}

// Runtime is the summed elapsed time of the run in progress.
func (m *Mix) Runtime() float64 {
	return m.runtime
}

// LastRuntime is the runtime of the most recently finished run.
func (m *Mix) LastRuntime() float64 {
	return m.last
}

// FinishRun closes the current run and folds a measured run's runtime into
// the mix aggregates.
func (m *Mix) FinishRun() {
	if m.pending || m.HasNext() {
		panic(fmt.Sprintf("bench: FinishRun called at position %d of %d", m.pos, len(m.order)))
	}
	if m.run >= 0 {
		m.agg.Add(m.runtime)
	}
	m.last = m.runtime
	m.runtime = 0
}

func (m *Mix) Stats(k Key) QueryStats {
	if s, ok := m.stats[k]; ok {
		return *s
	}
	return QueryStats{}
}

func (m *Mix) MixStats() MixStats {
	return m.agg
}

func (m *Mix) Runs() int {
	return m.agg.Runs
}

func (m *Mix) TotalRuntime() float64 {
	return m.agg.Total
}

func (m *Mix) MinRuntime() float64 {
	return m.agg.Min
}

func (m *Mix) MaxRuntime() float64 {
	return m.agg.Max
}

func (m *Mix) GeoMeanRuntime() float64 {
	return m.agg.GeoMean()
}

func (m *Mix) QMpH() float64 {
	return m.agg.QMpH()
}

// Result freezes a copy of the statistics gathered so far.
func (m *Mix) Result() Result {
	r := Result{
		Workload: m.workload,
		Queries:  make(map[Key]QueryStats, len(m.stats)),
		Mix:      m.agg,
	}
	for k, s := range m.stats {
		r.Queries[k] = *s
	}
	return r
}
