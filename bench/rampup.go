package bench

import (
	"context"
	"io"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

type periodSample struct {
	runtime  float64
	improved bool
}

// Detector decides when a database has warmed up: the last Width period
// runtimes must lie within Threshold of their minimum, and none of them may
// have set a new overall minimum. Equal runtimes do not count as a new
// minimum, so a flat series converges after exactly Width periods.
type Detector struct {
	Width     int
	Threshold float64

	window  []periodSample
	minimum float64
	periods int
}

func NewDetector(width int, threshold float64) *Detector {
	return &Detector{Width: width, Threshold: threshold}
}

// Observe adds one period runtime and reports whether steady state holds.
func (d *Detector) Observe(runtime float64) (bool, error) {
	if d.Width < 1 {
		return false, errors.Errorf("ramp-up window must be positive, got %d", d.Width)
	}
	improved := d.periods > 0 && runtime < d.minimum
	if d.periods == 0 || runtime < d.minimum {
		d.minimum = runtime
	}
	d.periods++

	d.window = append(d.window, periodSample{runtime: runtime, improved: improved})
	if len(d.window) > d.Width {
		d.window = d.window[1:]
	}
	if len(d.window) < d.Width {
		return false, nil
	}
	if len(d.window) != d.Width {
		return false, errors.Errorf("ramp-up window holds %d periods, want %d", len(d.window), d.Width)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range d.window {
		if s.improved {
			return false, nil
		}
		lo = math.Min(lo, s.runtime)
		hi = math.Max(hi, s.runtime)
	}
	if hi == lo {
		return true, nil
	}
	if lo <= 0 {
		return false, nil
	}
	return (hi-lo)/lo < d.Threshold, nil
}

func (d *Detector) Minimum() float64 {
	return d.minimum
}

func (d *Detector) Periods() int {
	return d.periods
}

// WindowTotal is the summed runtime of the periods currently in the window.
func (d *Detector) WindowTotal() float64 {
	xs := make([]float64, len(d.window))
	for i, s := range d.window {
		xs[i] = s.runtime
	}
	return floats.Sum(xs)
}

type RampUpResult struct {
	Periods int
	Runtime float64
	Minimum float64
}

// RampUp executes periods of measured query mixes until the Detector
// reports steady state. Update queries are never executed.
type RampUp struct {
	Runner   *Runner
	Detector *Detector
	Out      io.Writer // "<period>\t<runtime>" per period
}

func (r *RampUp) Run(ctx context.Context) (RampUpResult, error) {
	if r.Runner.Params.PeriodSize < 1 {
		return RampUpResult{}, errors.Errorf("ramp-up period size must be positive, got %d", r.Runner.Params.PeriodSize)
	}
	r.Runner.SkipUpdates = true
	periods := NewPeriodLog(r.Out)
	logger := r.Runner.logger()

	var res RampUpResult
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Periods++
		runtime := 0.0
		for run := 1; run <= r.Runner.Params.PeriodSize; run++ {
			if err := r.Runner.RunOnce(ctx, run); err != nil {
				return res, errors.Wrapf(err, "ramp-up period %d", res.Periods)
			}
			runtime += r.Runner.Mix.LastRuntime()
			logger.WithFields(log.Fields{"period": res.Periods, "run": run}).
				Debugf("%s", FmtSeconds(r.Runner.Mix.LastRuntime()))
		}
		if err := periods.Append(res.Periods, runtime); err != nil {
			return res, errors.Wrap(err, "writing ramp-up log")
		}
		res.Runtime += runtime

		steady, err := r.Detector.Observe(runtime)
		if err != nil {
			return res, err
		}
		res.Minimum = r.Detector.Minimum()
		logger.WithField("period", res.Periods).
			Infof("period runtime %.3fs, window %.3fs, minimum %.3fs", runtime, r.Detector.WindowTotal(), res.Minimum)
		if steady {
			logger.Infof("steady state reached after %d periods, %.3fs in total", res.Periods, res.Runtime)
			return res, nil
		}
	}
}
