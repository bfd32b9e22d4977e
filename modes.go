package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"querymix-bench/backend"
	"querymix-bench/bench"
	"querymix-bench/config"
	"querymix-bench/metrics"
	"querymix-bench/params"
	"querymix-bench/qual"
)

const (
	traceFile       = "run-details.json"
	steadyStateFile = "steadystate.tsv"
	rampUpFile      = "rampup.tsv"
)

func backendOptions(cfg config.Config) backend.Options {
	return backend.Options{
		Endpoint:       cfg.Endpoint,
		Driver:         cfg.Driver,
		SQL:            cfg.SQL,
		UpdateEndpoint: cfg.UpdateEndpoint,
		DefaultGraph:   cfg.DefaultGraph,
		UpdateParam:    cfg.UpdateParam,
		Timeout:        cfg.Timeout(),
	}
}

func closeConn(conn bench.Conn) {
	if err := conn.Close(); err != nil {
		log.Warnf("closing connection: %v", err)
	}
}

func runSingle(ctx context.Context, cfg config.Config, wl *bench.Workload, data *params.Dataset, mode params.Mode) error {
	pool := params.New(data, cfg.Seed, 0, 1, mode)
	scale, err := pool.ScaleFactor()
	if err != nil {
		return err
	}

	var conn bench.Conn
	if !cfg.Generate {
		conn, err = backend.Open(ctx, backendOptions(cfg))
		if err != nil {
			return err
		}
		defer closeConn(conn)
	}

	tf, err := os.Create(traceFile)
	if err != nil {
		return errors.Wrap(err, "creating trace")
	}
	defer tf.Close()
	trace, err := bench.NewTrace(tf, bench.TraceHeader{
		Generated: time.Now().Format(time.RFC3339),
		DataName:  filepath.Base(filepath.Clean(cfg.DataDir)),
		Warmups:   cfg.Warmups,
		Runs:      cfg.Runs,
		RunID:     uuid.NewString(),
	})
	if err != nil {
		return errors.Wrap(err, "writing trace header")
	}

	pf, err := os.Create(steadyStateFile)
	if err != nil {
		return errors.Wrap(err, "creating period log")
	}
	defer pf.Close()

	runner := &bench.Runner{
		Mix:      bench.NewMix(wl, cfg.Timeout().Seconds()),
		Pool:     pool,
		Conn:     conn,
		Params:   cfg.RunParams(),
		Trace:    trace,
		Periods:  pf,
		Progress: cfg.Progress,
	}
	var rec *metrics.Recorder
	if cfg.MetricsFile != "" {
		rec = metrics.NewRecorder()
		runner.Observer = rec
	}

	log.Infof("starting %d warmup and %d measured runs", cfg.Warmups, cfg.Runs)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	if cfg.Generate {
		log.Infof("generated queries written to %s", traceFile)
		return nil
	}

	stats := bench.ComputeStats("Single client", runner.Mix.Result(), bench.RunInfo{
		ScaleFactor: scale,
		Warmups:     cfg.Warmups,
		Seed:        cfg.Seed,
	})
	return report(cfg, stats, rec)
}

func runMulti(ctx context.Context, cfg config.Config, wl *bench.Workload, data *params.Dataset, mode params.Mode) error {
	scale, err := params.New(data, cfg.Seed, 0, cfg.Clients, mode).ScaleFactor()
	if err != nil {
		return err
	}

	orch := &bench.Orchestrator{
		Workload: wl,
		Clients:  cfg.Clients,
		Params:   cfg.RunParams(),
		Factory: bench.ClientFactory{
			NewPool: func(client int) (bench.ParameterPool, error) {
				return params.New(data, cfg.Seed, client, cfg.Clients, mode), nil
			},
			Connect: func(ctx context.Context, client int) (bench.Conn, error) {
				return backend.Open(ctx, backendOptions(cfg))
			},
		},
	}
	res, err := orch.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "every client failed")
	}
	if res.Incomplete() {
		log.Warnf("run incomplete: %d client(s) failed, %d measured run(s) lost", len(res.Failures), res.LostRuns)
	}

	stats := bench.ComputeStats(fmt.Sprintf("%d clients", cfg.Clients), res, bench.RunInfo{
		ScaleFactor: scale,
		Warmups:     cfg.Warmups,
		Seed:        cfg.Seed,
	})
	var rec *metrics.Recorder
	if cfg.MetricsFile != "" {
		rec = metrics.NewRecorder()
	}
	return report(cfg, stats, rec)
}

func runRampUp(ctx context.Context, cfg config.Config, wl *bench.Workload, data *params.Dataset, mode params.Mode) error {
	pool := params.New(data, cfg.Seed, 0, 1, mode)
	conn, err := backend.Open(ctx, backendOptions(cfg))
	if err != nil {
		return err
	}
	defer closeConn(conn)

	f, err := os.Create(rampUpFile)
	if err != nil {
		return errors.Wrap(err, "creating ramp-up log")
	}
	defer f.Close()

	ru := &bench.RampUp{
		Runner: &bench.Runner{
			Mix:    bench.NewMix(wl, cfg.Timeout().Seconds()),
			Pool:   pool,
			Conn:   conn,
			Params: cfg.RunParams(),
		},
		Detector: bench.NewDetector(cfg.Window, cfg.Threshold),
		Out:      f,
	}
	log.Infof("starting ramp-up: %d query mixes per period, window %d, threshold %g", cfg.PeriodSize, cfg.Window, cfg.Threshold)
	res, err := ru.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Steady state reached after %d periods (%d query mixes, %.3fs)\n",
		res.Periods, res.Periods*cfg.PeriodSize, res.Runtime)
	return nil
}

func runQualification(ctx context.Context, cfg config.Config, wl *bench.Workload, data *params.Dataset, mode params.Mode) error {
	pool := params.New(data, cfg.Seed, 0, 1, mode)
	scale, err := pool.ScaleFactor()
	if err != nil {
		return err
	}
	conn, err := backend.Open(ctx, backendOptions(cfg))
	if err != nil {
		return err
	}
	defer closeConn(conn)

	w, err := qual.Create(cfg.QualFile, qual.Header{
		QueryCount:  wl.Size,
		Seed:        cfg.Seed,
		ScaleFactor: scale,
		Runs:        cfg.Runs,
		RunOrder:    wl.RunOrder(),
		Ignore:      wl.IgnoreFlags(),
	})
	if err != nil {
		return err
	}
	defer w.Close()

	log.Infof("starting qualification run, writing %s", cfg.QualFile)
	if err := bench.Qualify(ctx, bench.NewMix(wl, 0), pool, conn, cfg.Runs, cfg.Delim(), w); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "closing qualification file")
	}
	log.Infof("qualification file %s written", cfg.QualFile)
	return nil
}

func report(cfg config.Config, stats bench.BenchStats, rec *metrics.Recorder) error {
	bench.PrintStats(os.Stdout, stats)

	f, err := os.Create(cfg.Output)
	if err != nil {
		return errors.Wrap(err, "creating report")
	}
	defer f.Close()
	if cfg.JSONOutput() {
		err = bench.WriteJSON(f, stats)
	} else {
		err = bench.WriteXML(f, stats)
	}
	if err != nil {
		return errors.Wrapf(err, "writing %s", cfg.Output)
	}
	log.Infof("results written to %s", cfg.Output)

	if rec != nil {
		rec.Publish(stats)
		if err := rec.WriteFile(cfg.MetricsFile); err != nil {
			return errors.Wrap(err, "writing metrics")
		}
	}
	return nil
}
