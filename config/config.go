// Package config holds the run configuration: defaults, an optional YAML
// overlay and validation. Command line flags are applied on top by main.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"querymix-bench/bench"
)

// ErrIncompatible reports options that cannot be combined.
var ErrIncompatible = errors.New("incompatible options")

// QualificationRuns is the fixed run count of a qualification run.
const QualificationRuns = 15

type Config struct {
	Endpoint       string `yaml:"endpoint"`
	UpdateEndpoint string `yaml:"update_endpoint"`
	DefaultGraph   string `yaml:"default_graph"`
	Driver         string `yaml:"dbdriver"`
	SQL            bool   `yaml:"sql"`

	Warmups   int   `yaml:"warmups"`
	Runs      int   `yaml:"runs"`
	Seed      int64 `yaml:"seed"`
	TimeoutMs int   `yaml:"timeout_ms"`
	Clients   int   `yaml:"clients"` // 0 runs a single client

	DataDir       string `yaml:"idir"`
	UseCaseFile   string `yaml:"ucf"`
	UpdateDataset string `yaml:"udataset"`
	UpdateParam   string `yaml:"uqp"`

	Output      string `yaml:"output"`
	QualFile    string `yaml:"qualification_file"`
	MetricsFile string `yaml:"metrics_file"`

	Qualify  bool `yaml:"qualify"`
	RampUp   bool `yaml:"rampup"`
	Generate bool `yaml:"generate"`
	Progress bool `yaml:"progress"`

	PeriodSize int     `yaml:"period_size"`
	Window     int     `yaml:"window"`
	Threshold  float64 `yaml:"threshold"`

	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Warmups:     50,
		Runs:        500,
		Seed:        808080,
		DataDir:     "td_data",
		UseCaseFile: "usecases/explore/sparql.txt",
		UpdateParam: "update",
		Output:      "benchmark_result.xml",
		QualFile:    "run.qual",
		PeriodSize:  50,
		Window:      5,
		Threshold:   0.05,
		LogLevel:    "info",
	}
}

// Load overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current value.
func Load(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading config")
	}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Clients > 0 && c.RampUp:
		return errors.Wrap(ErrIncompatible, "-mt and -rampup")
	case c.Clients > 0 && c.Qualify:
		return errors.Wrap(ErrIncompatible, "-mt and -q")
	case c.Clients > 0 && c.Generate:
		return errors.Wrap(ErrIncompatible, "-mt and -gen")
	case c.RampUp && c.Qualify:
		return errors.Wrap(ErrIncompatible, "-rampup and -q")
	case c.Clients < 0:
		return errors.Errorf("client count must be positive, got %d", c.Clients)
	case c.Warmups < 0:
		return errors.Errorf("warmup runs must not be negative, got %d", c.Warmups)
	case c.Runs < 0:
		return errors.Errorf("runs must not be negative, got %d", c.Runs)
	case c.TimeoutMs < 0:
		return errors.Errorf("timeout must not be negative, got %d", c.TimeoutMs)
	case c.PeriodSize < 1:
		return errors.Errorf("period size must be positive, got %d", c.PeriodSize)
	case c.Window < 1:
		return errors.Errorf("ramp-up window must be positive, got %d", c.Window)
	case c.Threshold <= 0:
		return errors.Errorf("ramp-up threshold must be positive, got %g", c.Threshold)
	case c.Endpoint == "" && !c.Generate:
		return errors.New("missing endpoint")
	}
	return nil
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Delim is the parameter placeholder delimiter of the query templates.
func (c Config) Delim() string {
	if c.SQL {
		return "@"
	}
	return "%"
}

func (c Config) RunParams() bench.RunParams {
	return bench.RunParams{
		Warmups:    c.Warmups,
		Runs:       c.Runs,
		Timeout:    c.Timeout(),
		PeriodSize: c.PeriodSize,
		Window:     c.Window,
		Threshold:  c.Threshold,
		Generate:   c.Generate,
		Delim:      c.Delim(),
	}
}

// JSONOutput reports whether the structured report is JSON rather than XML.
func (c Config) JSONOutput() bool {
	return strings.HasSuffix(strings.ToLower(c.Output), ".json")
}
