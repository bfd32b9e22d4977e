package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"querymix-bench/config"
	"querymix-bench/params"
	"querymix-bench/qual"
	"querymix-bench/workload"
)

var Version = "dev"

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	if err := newApp().Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, qual.ErrExists) {
		return 1
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) && ec.ExitCode() != 0 {
		return ec.ExitCode()
	}
	return -1
}

func newApp() *cli.App {
	def := config.Default()
	return &cli.App{
		Name:            "querymix-bench",
		Usage:           "run query mix benchmarks against SQL databases and HTTP query endpoints",
		Version:         Version,
		ArgsUsage:       "<endpoint>",
		HideHelpCommand: true,
		ExitErrHandler:  func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "runs", Aliases: []string{"r"}, Value: def.Runs, Usage: "measured query mix runs"},
			&cli.IntFlag{Name: "warm", Aliases: []string{"w"}, Value: def.Warmups, Usage: "warmup query mix runs"},
			&cli.StringFlag{Name: "idir", Value: def.DataDir, Usage: "directory with the reference data"},
			&cli.StringFlag{Name: "o", Value: def.Output, Usage: "structured report, XML or .json"},
			&cli.StringFlag{Name: "dg", Usage: "default graph of HTTP queries"},
			&cli.BoolFlag{Name: "sql", Usage: "run SQL queries against a database endpoint"},
			&cli.IntFlag{Name: "mt", Usage: "number of concurrent clients"},
			&cli.Int64Flag{Name: "seed", Value: def.Seed, Usage: "parameter generator seed"},
			&cli.IntFlag{Name: "t", Usage: "query timeout in milliseconds, 0 for none"},
			&cli.StringFlag{Name: "dbdriver", Usage: "backend driver: postgres, mysql, sqlite or http"},
			&cli.StringFlag{Name: "qf", Value: def.QualFile, Usage: "qualification snapshot file"},
			&cli.BoolFlag{Name: "q", Usage: "qualification run (forces 15 runs)"},
			&cli.BoolFlag{Name: "rampup", Usage: "run until the steady state is reached"},
			&cli.StringFlag{Name: "u", Usage: "update endpoint"},
			&cli.StringFlag{Name: "udataset", Usage: "update transaction dataset"},
			&cli.StringFlag{Name: "ucf", Value: def.UseCaseFile, Usage: "use case file"},
			&cli.StringFlag{Name: "uqp", Value: def.UpdateParam, Usage: "form parameter carrying HTTP updates"},
			&cli.BoolFlag{Name: "gen", Usage: "bind and trace queries without executing them"},
			&cli.StringFlag{Name: "config", Usage: "YAML configuration file, overridden by flags"},
			&cli.BoolFlag{Name: "progress", Usage: "show a progress bar"},
			&cli.StringFlag{Name: "metrics", Usage: "write Prometheus metrics to this file"},
			&cli.StringFlag{Name: "loglevel", Value: def.LogLevel, Usage: "log level"},
		},
		Action: run,
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		if err := config.Load(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("runs") {
		cfg.Runs = c.Int("runs")
	}
	if c.IsSet("warm") {
		cfg.Warmups = c.Int("warm")
	}
	if c.IsSet("mt") {
		if n := c.Int("mt"); n < 1 {
			return cfg, errors.Errorf("-mt needs a positive client count, got %d", n)
		}
		cfg.Clients = c.Int("mt")
	}
	if c.IsSet("seed") {
		cfg.Seed = c.Int64("seed")
	}
	if c.IsSet("t") {
		cfg.TimeoutMs = c.Int("t")
	}
	for name, dst := range map[string]*string{
		"idir":     &cfg.DataDir,
		"o":        &cfg.Output,
		"dg":       &cfg.DefaultGraph,
		"dbdriver": &cfg.Driver,
		"qf":       &cfg.QualFile,
		"u":        &cfg.UpdateEndpoint,
		"udataset": &cfg.UpdateDataset,
		"ucf":      &cfg.UseCaseFile,
		"uqp":      &cfg.UpdateParam,
		"metrics":  &cfg.MetricsFile,
		"loglevel": &cfg.LogLevel,
	} {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	for name, dst := range map[string]*bool{
		"sql":      &cfg.SQL,
		"q":        &cfg.Qualify,
		"rampup":   &cfg.RampUp,
		"gen":      &cfg.Generate,
		"progress": &cfg.Progress,
	} {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}
	if cfg.Qualify {
		cfg.Runs = config.QualificationRuns
	}

	switch c.NArg() {
	case 0:
	case 1:
		cfg.Endpoint = c.Args().First()
	default:
		return cfg, errors.Errorf("expected one endpoint, got %v", c.Args().Slice())
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		_ = cli.ShowAppHelp(c)
		return err
	}
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	if cfg.Qualify {
		if err := qual.Check(cfg.QualFile); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("ucf", cfg.UseCaseFile).Info("reading workload")
	wl, err := workload.Load(cfg.UseCaseFile, workload.Options{Qualification: cfg.Qualify})
	if err != nil {
		return err
	}
	data := params.NewDataset(cfg.DataDir, cfg.UpdateDataset)
	mode := params.HTTP
	if cfg.SQL {
		mode = params.SQL
	}

	switch {
	case cfg.Qualify:
		return runQualification(ctx, cfg, wl, data, mode)
	case cfg.RampUp:
		return runRampUp(ctx, cfg, wl, data, mode)
	case cfg.Clients > 0:
		return runMulti(ctx, cfg, wl, data, mode)
	}
	return runSingle(ctx, cfg, wl, data, mode)
}
