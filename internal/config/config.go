// Package config loads epimitctl settings from TOML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"epimit/internal/evaluator"
	"epimit/internal/model"
	"epimit/internal/scenario"
	"epimit/internal/storage"
)

const (
	DefaultDBPath     = "epimit.db"
	DefaultReportsDir = "reports"
	DefaultExportsDir = "exports"
)

type EvaluatorConfig struct {
	InfectionFloor float64 `toml:"infection_floor"`
	ExpCeiling     float64 `toml:"exp_ceiling"`
	Sharpness      float64 `toml:"sharpness"`
}

type ScenarioConfig struct {
	Kind  string `toml:"kind"`
	Nodes int    `toml:"nodes"`
	Seed  int64  `toml:"seed"`

	A    float64 `toml:"a"`
	TOn  float64 `toml:"t_on"`
	TOff float64 `toml:"t_off"`

	// Random scenario sampling ranges.
	States scenario.Range `toml:"states"`
	Rates  scenario.Range `toml:"rates"`
	Time   scenario.Range `toml:"time"`

	// Reference scenario horizon and control level.
	Duration float64 `toml:"duration"`
	Sigma    float64 `toml:"sigma"`
}

type StoreConfig struct {
	Kind   string `toml:"kind"`
	DBPath string `toml:"db_path"`
}

type ReportsConfig struct {
	Dir        string `toml:"dir"`
	ExportsDir string `toml:"exports_dir"`
}

type Config struct {
	Evaluator EvaluatorConfig `toml:"evaluator"`
	Scenario  ScenarioConfig  `toml:"scenario"`
	Store     StoreConfig     `toml:"store"`
	Reports   ReportsConfig   `toml:"reports"`
}

func Default() *Config {
	ev := evaluator.DefaultConfig()
	random := scenario.DefaultRandomOptions()
	reference := scenario.DefaultReferenceOptions()
	return &Config{
		Evaluator: EvaluatorConfig{
			InfectionFloor: ev.InfectionFloor,
			ExpCeiling:     ev.ExpCeiling,
			Sharpness:      ev.Sharpness,
		},
		Scenario: ScenarioConfig{
			Kind:     scenario.KindRandom,
			Nodes:    random.Nodes,
			Seed:     random.Seed,
			A:        random.Shape.A,
			TOn:      random.Shape.TOn,
			TOff:     random.Shape.TOff,
			States:   random.States,
			Rates:    random.Rates,
			Time:     random.Time,
			Duration: reference.Duration,
			Sigma:    reference.Sigma,
		},
		Store: StoreConfig{
			Kind:   storage.DefaultStoreKind(),
			DBPath: DefaultDBPath,
		},
		Reports: ReportsConfig{
			Dir:        DefaultReportsDir,
			ExportsDir: DefaultExportsDir,
		},
	}
}

// Load reads a TOML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.EvaluatorOptions().Validate(); err != nil {
		return err
	}
	switch c.Scenario.Kind {
	case scenario.KindRandom, scenario.KindReference:
	default:
		return fmt.Errorf("unsupported scenario kind: %s", c.Scenario.Kind)
	}
	if c.Scenario.Nodes <= 0 {
		return errors.New("scenario nodes must be > 0")
	}
	if c.Scenario.A <= 0 {
		return errors.New("switch slope a must be > 0")
	}
	if c.Scenario.TOff < c.Scenario.TOn {
		return errors.New("t_off must be >= t_on")
	}
	switch c.Store.Kind {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported store kind: %s", c.Store.Kind)
	}
	return nil
}

func (c *Config) EvaluatorOptions() evaluator.Config {
	return evaluator.Config{
		InfectionFloor: c.Evaluator.InfectionFloor,
		ExpCeiling:     c.Evaluator.ExpCeiling,
		Sharpness:      c.Evaluator.Sharpness,
	}
}

func (c *Config) Shape() model.Shape {
	return model.Shape{A: c.Scenario.A, TOn: c.Scenario.TOn, TOff: c.Scenario.TOff}
}

// Batch builds the configured scenario.
func (c *Config) Batch() (model.Batch, error) {
	switch c.Scenario.Kind {
	case scenario.KindRandom:
		return scenario.Random(scenario.RandomOptions{
			Nodes:  c.Scenario.Nodes,
			Seed:   c.Scenario.Seed,
			States: c.Scenario.States,
			Rates:  c.Scenario.Rates,
			Time:   c.Scenario.Time,
			Shape:  c.Shape(),
		})
	case scenario.KindReference:
		opts := scenario.DefaultReferenceOptions()
		opts.Nodes = c.Scenario.Nodes
		opts.Duration = c.Scenario.Duration
		opts.Sigma = c.Scenario.Sigma
		opts.Shape = c.Shape()
		return scenario.Reference(opts)
	default:
		return model.Batch{}, fmt.Errorf("unsupported scenario kind: %s", c.Scenario.Kind)
	}
}
