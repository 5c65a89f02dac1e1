package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epimit/internal/evaluator"
	"epimit/internal/scenario"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epimit.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, evaluator.DefaultConfig(), cfg.EvaluatorOptions())
	assert.Equal(t, scenario.KindRandom, cfg.Scenario.Kind)
	assert.Equal(t, DefaultReportsDir, cfg.Reports.Dir)
}

func TestLoadOverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
[evaluator]
infection_floor = 1e-6
sharpness = 80.0

[scenario]
kind = "reference"
nodes = 20
t_off = 120.0

[store]
kind = "memory"

[reports]
dir = "out/reports"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1e-6, cfg.Evaluator.InfectionFloor)
	assert.Equal(t, 80.0, cfg.Evaluator.Sharpness)
	assert.Equal(t, evaluator.DefaultConfig().ExpCeiling, cfg.Evaluator.ExpCeiling)

	assert.Equal(t, scenario.KindReference, cfg.Scenario.Kind)
	assert.Equal(t, 20, cfg.Scenario.Nodes)
	assert.Equal(t, 120.0, cfg.Scenario.TOff)
	assert.Equal(t, scenario.DefaultShape.TOn, cfg.Scenario.TOn)

	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, DefaultDBPath, cfg.Store.DBPath)
	assert.Equal(t, "out/reports", cfg.Reports.Dir)
	assert.Equal(t, DefaultExportsDir, cfg.Reports.ExportsDir)
}

func TestLoadRangeTables(t *testing.T) {
	path := writeConfig(t, `
[scenario.rates]
lo = 0.1
hi = 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, scenario.Range{Lo: 0.1, Hi: 0.5}, cfg.Scenario.Rates)
	assert.Equal(t, scenario.DefaultRandomOptions().States, cfg.Scenario.States)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "[evaluator\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "[evaluator]\nsharpness = -1.0\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"scenario kind": func(c *Config) { c.Scenario.Kind = "unknown" },
		"nodes":         func(c *Config) { c.Scenario.Nodes = 0 },
		"slope":         func(c *Config) { c.Scenario.A = 0 },
		"window":        func(c *Config) { c.Scenario.TOn, c.Scenario.TOff = 50, 10 },
		"store":         func(c *Config) { c.Store.Kind = "postgres" },
		"ceiling":       func(c *Config) { c.Evaluator.ExpCeiling = 1 },
		"floor":         func(c *Config) { c.Evaluator.InfectionFloor = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBatch(t *testing.T) {
	cfg := Default()
	cfg.Scenario.Nodes = 12

	batch, err := cfg.Batch()
	require.NoError(t, err)
	assert.Equal(t, 12, batch.Nodes.Len())
	assert.Equal(t, cfg.Shape(), batch.Shape)

	cfg.Scenario.Kind = scenario.KindReference
	batch, err = cfg.Batch()
	require.NoError(t, err)
	assert.Equal(t, 12, batch.Nodes.Len())
	assert.Equal(t, cfg.Scenario.Duration, batch.Nodes.T[11])
}
