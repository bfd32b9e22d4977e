package bench

import (
	"math"
	"sort"
)

// logFloor keeps the logarithm defined for zero elapsed times: one
// nanosecond, the resolution of time.Duration.
const logFloor = 1e-9

func safeLog(x float64) float64 {
	return math.Log(math.Max(x, logFloor))
}

// QueryStats accumulates the measured executions of one query.
type QueryStats struct {
	Count     int
	Min       float64
	Max       float64
	Sum       float64
	SumLog    float64
	Timeouts  int
	Errors    int
	MinResult int
	MaxResult int
	SumResult float64
}

func (s *QueryStats) Add(result int, elapsed, timeout float64) {
	if s.Count == 0 {
		s.Min, s.Max = elapsed, elapsed
		s.MinResult, s.MaxResult = result, result
	} else {
		s.Min = math.Min(s.Min, elapsed)
		s.Max = math.Max(s.Max, elapsed)
		if result < s.MinResult {
			s.MinResult = result
		}
		if result > s.MaxResult {
			s.MaxResult = result
		}
	}
	s.Count++
	s.Sum += elapsed
	s.SumLog += safeLog(elapsed)
	s.SumResult += float64(result)
	if timeout > 0 && elapsed >= timeout {
		s.Timeouts++
	}
}

func (s *QueryStats) merge(o QueryStats) {
	s.Errors += o.Errors
	if o.Count == 0 {
		return
	}
	if s.Count == 0 {
		s.Min, s.Max = o.Min, o.Max
		s.MinResult, s.MaxResult = o.MinResult, o.MaxResult
	} else {
		s.Min = math.Min(s.Min, o.Min)
		s.Max = math.Max(s.Max, o.Max)
		if o.MinResult < s.MinResult {
			s.MinResult = o.MinResult
		}
		if o.MaxResult > s.MaxResult {
			s.MaxResult = o.MaxResult
		}
	}
	s.Count += o.Count
	s.Sum += o.Sum
	s.SumLog += o.SumLog
	s.SumResult += o.SumResult
	s.Timeouts += o.Timeouts
}

func (s QueryStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

func (s QueryStats) GeoMean() float64 {
	if s.Count == 0 {
		return 0
	}
	return math.Exp(s.SumLog / float64(s.Count))
}

func (s QueryStats) AvgResult() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.SumResult / float64(s.Count)
}

// MixStats accumulates whole query-mix runs.
type MixStats struct {
	Runs   int
	Total  float64
	Min    float64
	Max    float64
	SumLog float64
}

func (m *MixStats) Add(runtime float64) {
	if m.Runs == 0 {
		m.Min, m.Max = runtime, runtime
	} else {
		m.Min = math.Min(m.Min, runtime)
		m.Max = math.Max(m.Max, runtime)
	}
	m.Runs++
	m.Total += runtime
	m.SumLog += safeLog(runtime)
}

func (m *MixStats) merge(o MixStats) {
	if o.Runs == 0 {
		return
	}
	if m.Runs == 0 {
		m.Min, m.Max = o.Min, o.Max
	} else {
		m.Min = math.Min(m.Min, o.Min)
		m.Max = math.Max(m.Max, o.Max)
	}
	m.Runs += o.Runs
	m.Total += o.Total
	m.SumLog += o.SumLog
}

// CQET is the arithmetic mean runtime of one query mix.
func (m MixStats) CQET() float64 {
	if m.Runs == 0 {
		return 0
	}
	return m.Total / float64(m.Runs)
}

func (m MixStats) GeoMean() float64 {
	if m.Runs == 0 {
		return 0
	}
	return math.Exp(m.SumLog / float64(m.Runs))
}

// QMpH is query mixes per hour over the summed mix runtime.
func (m MixStats) QMpH() float64 {
	return qmph(m.Runs, m.Total)
}

func qmph(runs int, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return 3600 * float64(runs) / seconds
}

// ClientFailure records a client of a multi-client run that stopped early.
type ClientFailure struct {
	Client        int
	Phase         string
	Err           error
	CompletedRuns int
	PlannedRuns   int
}

// Result is a frozen copy of the statistics of one or more clients.
type Result struct {
	Workload *Workload
	Queries  map[Key]QueryStats
	Mix      MixStats

	// Set by the orchestrator only.
	Clients     int
	WallRuntime float64
	Failures    []ClientFailure
	LostRuns    int
}

func (r Result) Incomplete() bool {
	return len(r.Failures) > 0 || r.LostRuns > 0
}

// Merge combines per-client results. Contributions are summed in a canonical
// order, so any permutation of parts yields bit-identical totals.
func Merge(w *Workload, parts ...Result) Result {
	merged := Result{Workload: w, Queries: make(map[Key]QueryStats, len(w.Queries))}

	for _, q := range w.Queries {
		var contrib []QueryStats
		for _, p := range parts {
			if s, ok := p.Queries[q.Key]; ok {
				contrib = append(contrib, s)
			}
		}
		sort.Slice(contrib, func(i, j int) bool { return lessQueryStats(contrib[i], contrib[j]) })

		var total QueryStats
		for _, s := range contrib {
			total.merge(s)
		}
		merged.Queries[q.Key] = total
	}

	mixes := make([]MixStats, 0, len(parts))
	for _, p := range parts {
		mixes = append(mixes, p.Mix)
	}
	sort.Slice(mixes, func(i, j int) bool { return lessMixStats(mixes[i], mixes[j]) })
	for _, m := range mixes {
		merged.Mix.merge(m)
	}
	return merged
}

func lessQueryStats(a, b QueryStats) bool {
	switch {
	case a.Sum != b.Sum:
		return a.Sum < b.Sum
	case a.SumLog != b.SumLog:
		return a.SumLog < b.SumLog
	case a.SumResult != b.SumResult:
		return a.SumResult < b.SumResult
	case a.Count != b.Count:
		return a.Count < b.Count
	}
	return a.Timeouts < b.Timeouts
}

func lessMixStats(a, b MixStats) bool {
	switch {
	case a.Total != b.Total:
		return a.Total < b.Total
	case a.SumLog != b.SumLog:
		return a.SumLog < b.SumLog
	}
	return a.Runs < b.Runs
}

// RunInfo carries the run parameters echoed in reports.
type RunInfo struct {
	ScaleFactor int
	Warmups     int
	Seed        int64
}

type QueryReport struct {
	Index     int
	Type      QueryType
	Count     int
	AQET      float64
	AQETGeo   float64
	QPS       float64
	MinQET    float64
	MaxQET    float64
	AvgResult float64
	MinResult int
	MaxResult int
	Timeouts  int
	Errors    int
}

type BenchStats struct {
	Label       string
	ScaleFactor int
	Warmups     int
	Clients     int // 0 in single-client mode
	Seed        int64
	Runs        int
	MinMix      float64
	MaxMix      float64
	TotalRun    float64
	WallRun     float64
	QMpH        float64
	CQET        float64
	CQETGeo     float64
	Size        int
	Queries     []QueryReport

	FailedClients []ClientFailure
	LostRuns      int
}

func (s BenchStats) MultiClient() bool {
	return s.Clients > 0
}

// ComputeStats derives every reported metric from accumulated counters.
func ComputeStats(label string, r Result, info RunInfo) BenchStats {
	stats := BenchStats{
		Label:         label,
		ScaleFactor:   info.ScaleFactor,
		Warmups:       info.Warmups,
		Clients:       r.Clients,
		Seed:          info.Seed,
		Runs:          r.Mix.Runs,
		MinMix:        r.Mix.Min,
		MaxMix:        r.Mix.Max,
		TotalRun:      r.Mix.Total,
		CQET:          r.Mix.CQET(),
		CQETGeo:       r.Mix.GeoMean(),
		FailedClients: r.Failures,
		LostRuns:      r.LostRuns,
	}
	if r.Workload != nil {
		stats.Size = r.Workload.Size
	}

	speedup := 1.0
	if r.Clients > 0 {
		stats.WallRun = r.WallRuntime
		stats.QMpH = qmph(r.Mix.Runs, r.WallRuntime)
		if r.WallRuntime > 0 {
			speedup = r.Mix.Total / r.WallRuntime
		}
	} else {
		stats.QMpH = r.Mix.QMpH()
	}

	if r.Workload == nil {
		return stats
	}
	for _, q := range r.Workload.Queries {
		s := r.Queries[q.Key]
		rep := QueryReport{
			Index:     q.Index,
			Type:      q.Type,
			Count:     s.Count,
			AQET:      s.Mean(),
			AQETGeo:   s.GeoMean(),
			MinQET:    s.Min,
			MaxQET:    s.Max,
			AvgResult: s.AvgResult(),
			MinResult: s.MinResult,
			MaxResult: s.MaxResult,
			Timeouts:  s.Timeouts,
			Errors:    s.Errors,
		}
		if rep.AQET > 0 {
			rep.QPS = speedup / rep.AQET
		}
		stats.Queries = append(stats.Queries, rep)
	}
	return stats
}
