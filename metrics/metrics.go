// Package metrics exports benchmark measurements in the Prometheus text
// format.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"querymix-bench/bench"
)

const namespace = "querymix"

// Recorder observes single-client executions and publishes final results.
type Recorder struct {
	registry *prometheus.Registry

	latency  *prometheus.HistogramVec
	timeouts *prometheus.CounterVec
	failures *prometheus.CounterVec

	qmph     prometheus.Gauge
	cqet     prometheus.Gauge
	cqetGeo  prometheus.Gauge
	runs     prometheus.Gauge
	lostRuns prometheus.Gauge
	aqet     *prometheus.GaugeVec
	qps      *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Execution time of measured queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 18),
		}, []string{"query", "type"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_timeouts_total",
			Help:      "Measured queries that hit the timeout.",
		}, []string{"query"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Measured queries rejected by the backend.",
		}, []string{"query"}),
		qmph: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "qmph", Help: "Query mixes per hour.",
		}),
		cqet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cqet_seconds", Help: "Mean query mix runtime.",
		}),
		cqetGeo: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cqet_geometric_seconds", Help: "Geometric mean query mix runtime.",
		}),
		runs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "query_mix_runs", Help: "Measured query mix runs.",
		}),
		lostRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lost_runs", Help: "Measured runs lost to failed clients.",
		}),
		aqet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "aqet_seconds", Help: "Mean execution time per query.",
		}, []string{"query"}),
		qps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "qps", Help: "Queries per second per query.",
		}, []string{"query"}),
	}
	r.registry.MustRegister(r.latency, r.timeouts, r.failures,
		r.qmph, r.cqet, r.cqetGeo, r.runs, r.lostRuns, r.aqet, r.qps)
	return r
}

func (r *Recorder) ObserveQuery(q *bench.Query, out bench.Outcome) {
	label := strconv.Itoa(q.Index)
	switch {
	case out.Failed:
		r.failures.WithLabelValues(label).Inc()
		return
	case out.TimedOut:
		r.timeouts.WithLabelValues(label).Inc()
	}
	r.latency.WithLabelValues(label, q.Type.String()).Observe(out.Elapsed.Seconds())
}

func (r *Recorder) Publish(s bench.BenchStats) {
	r.qmph.Set(s.QMpH)
	r.cqet.Set(s.CQET)
	r.cqetGeo.Set(s.CQETGeo)
	r.runs.Set(float64(s.Runs))
	r.lostRuns.Set(float64(s.LostRuns))
	for _, q := range s.Queries {
		if q.Count == 0 {
			continue
		}
		label := strconv.Itoa(q.Index)
		r.aqet.WithLabelValues(label).Set(q.AQET)
		r.qps.WithLabelValues(label).Set(q.QPS)
	}
}

// WriteFile writes every registered metric to path in the textfile
// collector format.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
