package bench

import (
	"fmt"
	"io"
	"time"
)

func PrintStats(w io.Writer, s BenchStats) {
	fmt.Fprintf(w, "\n┌─────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(w, "│  %-51s│\n", s.Label)
	fmt.Fprintf(w, "├─────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(w, "│  Scale factor:       %-31d│\n", s.ScaleFactor)
	fmt.Fprintf(w, "│  Warmup runs:        %-31d│\n", s.Warmups)
	if s.MultiClient() {
		fmt.Fprintf(w, "│  Clients:            %-31d│\n", s.Clients)
	}
	fmt.Fprintf(w, "│  Seed:               %-31d│\n", s.Seed)
	fmt.Fprintf(w, "│  Query mix runs:     %-31d│\n", s.Runs)
	fmt.Fprintf(w, "├─────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(w, "│  Mix runtime min:    %-31s│\n", fmt.Sprintf("%.4fs", s.MinMix))
	fmt.Fprintf(w, "│  Mix runtime max:    %-31s│\n", fmt.Sprintf("%.4fs", s.MaxMix))
	if s.MultiClient() {
		fmt.Fprintf(w, "│  Runtime (sum):      %-31s│\n", fmt.Sprintf("%.3fs", s.TotalRun))
		fmt.Fprintf(w, "│  Runtime (wall):     %-31s│\n", fmt.Sprintf("%.3fs", s.WallRun))
	} else {
		fmt.Fprintf(w, "│  Runtime:            %-31s│\n", fmt.Sprintf("%.3fs", s.TotalRun))
	}
	fmt.Fprintf(w, "│  QMpH:               %-31.2f│\n", s.QMpH)
	fmt.Fprintf(w, "│  CQET:               %-31s│\n", fmt.Sprintf("%.5fs", s.CQET))
	fmt.Fprintf(w, "│  CQET (geom.):       %-31s│\n", fmt.Sprintf("%.5fs", s.CQETGeo))
	if len(s.FailedClients) > 0 || s.LostRuns > 0 {
		fmt.Fprintf(w, "├─────────────────────────────────────────────────────┤\n")
		fmt.Fprintf(w, "│  INCOMPLETE: %-39s│\n", fmt.Sprintf("%d client(s) failed, %d run(s) lost", len(s.FailedClients), s.LostRuns))
		for _, f := range s.FailedClients {
			fmt.Fprintf(w, "│    client %-3d %-38s│\n", f.Client, fmt.Sprintf("%s phase, %d/%d runs", f.Phase, f.CompletedRuns, f.PlannedRuns))
		}
	}
	fmt.Fprintf(w, "└─────────────────────────────────────────────────────┘\n")

	for _, q := range s.Queries {
		fmt.Fprintf(w, "\nMetrics for query %d (%s):\n", q.Index, q.Type)
		fmt.Fprintf(w, "  Count:            %d times executed in %d query mix runs\n", q.Count, s.Runs)
		fmt.Fprintf(w, "  AQET:             %.6f seconds (arithmetic mean)\n", q.AQET)
		fmt.Fprintf(w, "  AQET (geom.):     %.6f seconds (geometric mean)\n", q.AQETGeo)
		fmt.Fprintf(w, "  QPS:              %.2f queries per second\n", q.QPS)
		fmt.Fprintf(w, "  min/max QET:      %.8fs / %.8fs\n", q.MinQET, q.MaxQET)
		unit := "Bytes"
		if q.Type == SelectType {
			unit = "results"
		}
		fmt.Fprintf(w, "  Average %-8s  %.2f\n", unit+":", q.AvgResult)
		fmt.Fprintf(w, "  min/max %-8s  %d / %d\n", unit+":", q.MinResult, q.MaxResult)
		fmt.Fprintf(w, "  Timeouts:         %d\n", q.Timeouts)
		if q.Errors > 0 {
			fmt.Fprintf(w, "  Errors:           %d\n", q.Errors)
		}
	}
}

func FmtDur(d time.Duration) string {
	us := float64(d.Microseconds())
	if us < 1000 {
		return fmt.Sprintf("%.0fµs", us)
	}
	return fmt.Sprintf("%.2fms", us/1000)
}

func FmtSeconds(s float64) string {
	return FmtDur(time.Duration(s * float64(time.Second)))
}
