package bench

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ResultSink receives the canonical results of a qualification run.
type ResultSink interface {
	WriteResult(c *Canonical) error
}

// Qualify executes runs query mixes without timing anything and hands the
// canonical form of every result to sink. Update queries are executed too.
func Qualify(ctx context.Context, mix *Mix, pool ParameterPool, conn Conn, runs int, delim string, sink ResultSink) error {
	if delim == "" {
		delim = "%"
	}
	for run := 1; run <= runs; run++ {
		mix.SetRun(run)
		for mix.HasNext() {
			if err := ctx.Err(); err != nil {
				return err
			}
			q := mix.Next()
			params, err := pool.ParametersForQuery(q)
			if err != nil {
				mix.SetCurrent(0, Excluded)
				return errors.Wrapf(err, "binding parameters of %s", q.Name)
			}
			b := q.Bind(params, delim)
			if q.Ignored {
				mix.SetCurrent(0, Excluded)
				continue
			}

			res, err := conn.Validate(ctx, b)
			mix.SetCurrent(0, Excluded)
			if err != nil {
				return errors.Wrapf(err, "validating %s (run %d)", q.Name, run)
			}
			if res == nil {
				continue
			}
			res.Query = q.Index
			res.Type = q.Type
			if err := sink.WriteResult(res); err != nil {
				return errors.Wrap(err, "writing qualification result")
			}
		}
		mix.FinishRun()
		log.WithField("run", run).Info("qualification run done")
	}
	return nil
}
