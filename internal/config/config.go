// Package config loads and validates the harness configuration.
//
// All sweep parameters default to the study's reference design (two monetary
// regimes, 21 UBI levels from 0 to 5000 in steps of 250, 30 seeds per
// invocation); a YAML file may override any of them.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all regimelab configuration.
type Config struct {
	Sweep   SweepConfig   `yaml:"sweep"`
	Engine  EngineConfig  `yaml:"engine"`
	Paths   PathsConfig   `yaml:"paths"`
	Figures FiguresConfig `yaml:"figures"`
	Retry   RetryConfig   `yaml:"retry"`
}

// SweepConfig describes the full factorial sweep: every level is applied
// under every regime.
type SweepConfig struct {
	// Regimes is the ordered list of monetary-regime tags. The outer sweep
	// loop iterates regimes in this order.
	Regimes []string `yaml:"regimes"`

	// Levels is an explicit ordered list of policy levels. When set, it takes
	// precedence over LevelRange.
	Levels []int `yaml:"levels,omitempty"`

	// LevelRange expands to From, From+Step, ..., up to and including To.
	LevelRange *LevelRange `yaml:"level_range,omitempty"`

	// SeedCount is passed wholesale to each engine invocation; the engine is
	// responsible for running that many stochastic repetitions internally.
	SeedCount int `yaml:"seed_count"`
}

// LevelRange is an inclusive arithmetic level sequence.
type LevelRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
	Step int `yaml:"step"`
}

// EngineConfig describes how to invoke the external simulation engine.
type EngineConfig struct {
	// Binary is the engine executable path.
	Binary string `yaml:"binary"`

	// WorkDir is the engine's own root; the engine is invoked with this as
	// its working directory.
	WorkDir string `yaml:"work_dir"`

	// OutputDir is the fixed directory (relative to WorkDir unless absolute)
	// where the engine writes its two CSVs per run.
	OutputDir string `yaml:"output_dir"`
}

// PathsConfig holds the harness-side filesystem layout.
type PathsConfig struct {
	ResultsDir   string `yaml:"results_dir"`
	FiguresDir   string `yaml:"figures_dir"`
	LedgerPath   string `yaml:"ledger_path"`
	ManifestPath string `yaml:"manifest_path"`
}

// FiguresConfig lists the plotting commands the figures stage runs, in order.
type FiguresConfig struct {
	Plotters []PlotterConfig `yaml:"plotters"`
}

// PlotterConfig is one external plotting command.
type PlotterConfig struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// RetryConfig controls per-pair retries. The default is zero attempts: any
// engine failure aborts the whole sweep immediately.
type RetryConfig struct {
	Attempts int    `yaml:"attempts"`
	Backoff  string `yaml:"backoff"`
}

// ParseBackoff returns the retry backoff as a duration. An empty value means
// no backoff.
func (r RetryConfig) ParseBackoff() (time.Duration, error) {
	if r.Backoff == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.Backoff)
	if err != nil {
		return 0, fmt.Errorf("invalid retry.backoff %q: %w", r.Backoff, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("retry.backoff must not be negative (got %q)", r.Backoff)
	}
	return d, nil
}

// Default returns the reference-study configuration.
func Default() *Config {
	return &Config{
		Sweep: SweepConfig{
			Regimes:    []string{"pln", "eur"},
			LevelRange: &LevelRange{From: 0, To: 5000, Step: 250},
			SeedCount:  30,
		},
		Engine: EngineConfig{
			Binary:    "simulations/engine",
			WorkDir:   "simulations",
			OutputDir: "output",
		},
		Paths: PathsConfig{
			ResultsDir:   "simulations/results",
			FiguresDir:   "figures",
			LedgerPath:   ".regimelab/ledger.db",
			ManifestPath: ".regimelab/manifest.json",
		},
		Figures: FiguresConfig{
			Plotters: []PlotterConfig{
				{Name: "regime-charts", Command: "python3 analysis/python/regime_charts.py"},
				{Name: "regime-sweep", Command: "python3 analysis/python/regime_sweep.py"},
				{Name: "regime-welfare", Command: "python3 analysis/python/regime_welfare.py"},
			},
		},
		Retry: RetryConfig{Attempts: 0},
	}
}

// Load reads a YAML config file on top of the defaults.
//
// Unknown fields are rejected so that a typo in the file fails loudly instead
// of silently falling back to a default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// LoadError wraps any failure to read, parse, or validate a config file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ExpandLevels returns the ordered level sequence, expanding LevelRange when
// no explicit list is given.
func (s SweepConfig) ExpandLevels() []int {
	if len(s.Levels) > 0 {
		out := make([]int, len(s.Levels))
		copy(out, s.Levels)
		return out
	}
	if s.LevelRange == nil || s.LevelRange.Step <= 0 {
		return nil
	}
	var out []int
	for v := s.LevelRange.From; v <= s.LevelRange.To; v += s.LevelRange.Step {
		out = append(out, v)
	}
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Sweep.Regimes) == 0 {
		return fmt.Errorf("sweep.regimes must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Sweep.Regimes))
	for _, r := range c.Sweep.Regimes {
		if r == "" {
			return fmt.Errorf("sweep.regimes must not contain empty tags")
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("duplicate regime tag %q", r)
		}
		seen[r] = struct{}{}
	}

	levels := c.Sweep.ExpandLevels()
	if len(levels) == 0 {
		return fmt.Errorf("sweep requires levels or a level_range with a positive step")
	}
	seenLevel := make(map[int]struct{}, len(levels))
	for _, l := range levels {
		if l < 0 {
			return fmt.Errorf("levels must be non-negative (got %d)", l)
		}
		if _, dup := seenLevel[l]; dup {
			return fmt.Errorf("duplicate level %d", l)
		}
		seenLevel[l] = struct{}{}
	}

	if c.Sweep.SeedCount <= 0 {
		return fmt.Errorf("sweep.seed_count must be positive (got %d)", c.Sweep.SeedCount)
	}

	if c.Engine.Binary == "" {
		return fmt.Errorf("engine.binary is required")
	}
	if c.Paths.ResultsDir == "" {
		return fmt.Errorf("paths.results_dir is required")
	}
	if c.Paths.FiguresDir == "" {
		return fmt.Errorf("paths.figures_dir is required")
	}

	for i, p := range c.Figures.Plotters {
		if p.Name == "" {
			return fmt.Errorf("figures.plotters[%d].name is required", i)
		}
		if p.Command == "" {
			return fmt.Errorf("figures.plotters[%d].command is required", i)
		}
	}

	if c.Retry.Attempts < 0 {
		return fmt.Errorf("retry.attempts must be >= 0 (got %d)", c.Retry.Attempts)
	}
	if _, err := c.Retry.ParseBackoff(); err != nil {
		return err
	}
	return nil
}

// EngineOutputDir resolves the engine's output directory against its workdir.
func (c *Config) EngineOutputDir() string {
	if filepath.IsAbs(c.Engine.OutputDir) {
		return c.Engine.OutputDir
	}
	return filepath.Join(c.Engine.WorkDir, c.Engine.OutputDir)
}
