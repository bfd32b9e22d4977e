package bench

import (
	"context"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Runner is one client's sequential driver loop: it asks the Mix for the
// next query, binds it through the pool, executes it on the connection and
// feeds the outcome back.
type Runner struct {
	Mix    *Mix
	Pool   ParameterPool
	Conn   Conn
	Params RunParams

	// SkipUpdates skips update queries in every run, not only in warmups.
	SkipUpdates bool

	Trace    *Trace    // optional
	Periods  io.Writer // optional steady-state period log
	Observer Observer  // optional
	Progress bool
	Log      *log.Entry

	queryNumber int
}

func (r *Runner) logger() *log.Entry {
	if r.Log == nil {
		r.Log = log.NewEntry(log.StandardLogger())
	}
	return r.Log
}

// Run executes the configured warmup runs followed by the measured runs.
func (r *Runner) Run(ctx context.Context) error {
	var bar *pb.ProgressBar
	if r.Progress {
		bar = pb.StartNew(r.Params.Warmups + r.Params.Runs)
		defer bar.Finish()
	}

	var periods *PeriodLog
	if r.Periods != nil {
		periods = NewPeriodLog(r.Periods)
	}
	qms, period, periodRuntime := 0, 0, 0.0

	for run := -r.Params.Warmups; run <= r.Params.Runs; run++ {
		if run == 0 {
			continue
		}
		start := time.Now()
		if err := r.RunOnce(ctx, run); err != nil {
			return err
		}
		runtime := r.Mix.LastRuntime()

		if run > 0 && periods != nil && r.Params.PeriodSize > 0 {
			qms++
			periodRuntime += runtime
			if qms == r.Params.PeriodSize {
				period++
				if err := periods.Append(period, periodRuntime); err != nil {
					return errors.Wrap(err, "writing period log")
				}
				qms, periodRuntime = 0, 0
			}
		}

		entry := r.logger().WithField("run", run)
		switch {
		case r.Params.Generate:
			entry.Debug("generated")
		case bar != nil:
			entry.Debugf("%s, total: %s", FmtSeconds(runtime), FmtDur(time.Since(start)))
		default:
			entry.Infof("%s, total: %s", FmtSeconds(runtime), FmtDur(time.Since(start)))
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return nil
}

// RunOnce walks one complete query mix and closes the run on the Mix.
func (r *Runner) RunOnce(ctx context.Context, run int) error {
	r.Mix.SetRun(run)
	queryInRun := 0
	for r.Mix.HasNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := r.Mix.Next()
		if q.Type == UpdateType && (run < 0 || r.SkipUpdates) {
			r.Mix.SetCurrent(0, Excluded)
			continue
		}
		if err := r.execute(ctx, q, run, &queryInRun); err != nil {
			return err
		}
	}
	r.Mix.FinishRun()
	return nil
}

func (r *Runner) execute(ctx context.Context, q *Query, run int, queryInRun *int) error {
	params, err := r.Pool.ParametersForQuery(q)
	if err != nil {
		r.Mix.SetCurrent(0, Excluded)
		return errors.Wrapf(err, "binding parameters of %s", q.Name)
	}
	b := q.Bind(params, r.delim())

	if q.Ignored {
		r.Mix.SetCurrent(0, Excluded)
		return nil
	}
	*queryInRun++
	r.queryNumber++

	if r.Trace != nil {
		rec := TraceRecord{
			QueryNumber: r.queryNumber,
			RunLoop:     run,
			QueryInLoop: *queryInRun,
			Group:       q.Group,
			Query:       b.Text,
			Template:    q.Name,
			Params:      b.Params,
		}
		if err := r.Trace.Append(rec); err != nil {
			r.Mix.SetCurrent(0, Excluded)
			return errors.Wrap(err, "writing execution trace")
		}
	}

	if r.Params.Generate {
		r.Mix.SetCurrent(0, Excluded)
		return nil
	}

	out, err := r.Conn.Execute(ctx, b)
	if err != nil {
		if ctx.Err() != nil {
			r.Mix.SetCurrent(0, Excluded)
		} else {
			r.Mix.SetFailed()
		}
		return errors.Wrapf(err, "executing %s (run %d)", q.Name, run)
	}
	if r.Observer != nil && run > 0 {
		r.Observer.ObserveQuery(q, out)
	}
	if out.Failed {
		r.logger().WithFields(log.Fields{"run": run, "query": q.Index}).Warnf("query failed: %v", out.Err)
		r.Mix.SetFailed()
		return nil
	}

	elapsed := out.Elapsed.Seconds()
	if out.TimedOut && r.Params.Timeout > 0 && out.Elapsed < r.Params.Timeout {
		elapsed = r.Params.Timeout.Seconds()
	}
	r.Mix.SetCurrent(out.Result, elapsed)
	return nil
}

func (r *Runner) delim() string {
	if r.Params.Delim == "" {
		return "%"
	}
	return r.Params.Delim
}
