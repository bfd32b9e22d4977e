package bench

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ClientFactory builds the per-client collaborators. Both functions are
// called once per client, sequentially, before any client starts.
type ClientFactory struct {
	NewPool func(client int) (ParameterPool, error)
	Connect func(ctx context.Context, client int) (Conn, error)
}

// Orchestrator runs several clients against the same workload. Every client
// executes all warmup runs; measured runs are split across clients.
type Orchestrator struct {
	Workload *Workload
	Clients  int
	Params   RunParams
	Factory  ClientFactory
	Log      *log.Entry
}

type client struct {
	id        int
	runner    *Runner
	conn      Conn
	planned   int
	completed int
	failure   *ClientFailure
}

// RunShare is the number of measured runs client i executes. The remainder
// goes to the lowest-numbered clients.
func RunShare(runs, clients, i int) int {
	share := runs / clients
	if i < runs%clients {
		share++
	}
	return share
}

// Run executes the warmup phase on all clients, waits for every client to
// finish it, then executes and times the measured phase. Failed clients are
// reported in the result; an error is returned only when no client survives.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	if o.Clients < 1 {
		return Result{}, errors.Errorf("client count must be positive, got %d", o.Clients)
	}
	logger := o.Log
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	clients := make([]*client, o.Clients)
	for i := range clients {
		clients[i] = &client{id: i, planned: RunShare(o.Params.Runs, o.Clients, i)}
	}
	defer func() {
		for _, c := range clients {
			if c.conn == nil {
				continue
			}
			if err := c.conn.Close(); err != nil {
				logger.WithField("client", c.id).Warnf("closing connection: %v", err)
			}
		}
	}()

	logger.Infof("starting %d clients", o.Clients)
	for _, c := range clients {
		if err := o.setup(ctx, c, logger); err != nil {
			c.failure = &ClientFailure{Client: c.id, Phase: "setup", Err: err, PlannedRuns: c.planned}
			logger.WithField("client", c.id).Errorf("setup failed: %v", err)
		}
	}

	o.phase(clients, "warmup", logger, func(c *client) error {
		for run := -o.Params.Warmups; run < 0; run++ {
			if err := c.runner.RunOnce(ctx, run); err != nil {
				return err
			}
		}
		return nil
	})
	logger.Info("warmup phase finished")

	start := time.Now()
	o.phase(clients, "measured", logger, func(c *client) error {
		for run := 1; run <= c.planned; run++ {
			if err := c.runner.RunOnce(ctx, run); err != nil {
				return err
			}
			c.completed++
		}
		return nil
	})
	wall := time.Since(start).Seconds()
	logger.Infof("measured phase finished in %.3fs", wall)

	var (
		parts    []Result
		failures []ClientFailure
		lost     int
		merr     *multierror.Error
	)
	for _, c := range clients {
		if c.failure != nil {
			failures = append(failures, *c.failure)
			lost += c.planned
			merr = multierror.Append(merr, errors.Wrapf(c.failure.Err, "client %d (%s)", c.id, c.failure.Phase))
			continue
		}
		parts = append(parts, c.runner.Mix.Result())
	}
	if len(parts) == 0 {
		return Result{}, merr.ErrorOrNil()
	}

	res := Merge(o.Workload, parts...)
	res.Clients = o.Clients
	res.WallRuntime = wall
	res.Failures = failures
	res.LostRuns = lost
	return res, nil
}

func (o *Orchestrator) setup(ctx context.Context, c *client, logger *log.Entry) error {
	pool, err := o.Factory.NewPool(c.id)
	if err != nil {
		return errors.Wrap(err, "creating parameter pool")
	}
	conn, err := o.Factory.Connect(ctx, c.id)
	if err != nil {
		return errors.Wrap(err, "connecting")
	}
	c.conn = conn
	c.runner = &Runner{
		Mix:    NewMix(o.Workload, o.Params.Timeout.Seconds()),
		Pool:   pool,
		Conn:   conn,
		Params: o.Params,
		Log:    logger.WithField("client", c.id),
	}
	return nil
}

// phase runs fn on every healthy client and returns once all of them are
// done. Each goroutine writes only its own client record.
func (o *Orchestrator) phase(clients []*client, name string, logger *log.Entry, fn func(*client) error) {
	var g errgroup.Group
	for _, c := range clients {
		if c.failure != nil {
			continue
		}
		c := c
		g.Go(func() error {
			if err := fn(c); err != nil {
				c.failure = &ClientFailure{
					Client:        c.id,
					Phase:         name,
					Err:           err,
					CompletedRuns: c.completed,
					PlannedRuns:   c.planned,
				}
				logger.WithField("client", c.id).Errorf("%s phase failed: %v", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
