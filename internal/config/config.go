// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads hdrlight job files from YAML and turns them into operator sequences.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/mlnoga/hdrlight/internal/hdr"
	"github.com/mlnoga/hdrlight/internal/ops"
	hdrops "github.com/mlnoga/hdrlight/internal/ops/hdr"
)

// Config represents a job loaded from YAML
type Config struct {
	// Input file patterns with wildcards, expanded in order
	Inputs []string `yaml:"inputs"`

	// Output file for the composite. The suffix selects the format
	Output string `yaml:"output"`

	// Prefix for intermediate results written in verbose mode
	Prefix string `yaml:"prefix"`

	// Write all intermediate results of the pipeline
	Verbose bool `yaml:"verbose"`

	// Weight of every channel after the first, if hdr.weights is not given
	Weight float64 `yaml:"weight"`

	// Compositor parameters
	HDR hdr.Params `yaml:"hdr"`

	// Linear rescale of every input before compositing
	Rescale struct {
		Enabled bool    `yaml:"enabled"`
		OutMin  float32 `yaml:"outMin"`
		OutMax  float32 `yaml:"outMax"`
	} `yaml:"rescale"`

	// Optional preview of the central slice of the output
	Preview struct {
		FileName   string  `yaml:"fileName"`
		Gamma      float32 `yaml:"gamma"`
		FalseColor bool    `yaml:"falseColor"`
		ToneMapper string  `yaml:"toneMapper"`
	} `yaml:"preview"`

	// Processing resources
	Processing struct {
		// Threads limits concurrency, 0 for all available cores
		Threads int `yaml:"threads"`

		// MemoryMB limits the bilateral grids, 0 for 70% of physical memory
		MemoryMB int `yaml:"memoryMB"`

		// LogFile receives a copy of the log output, if set
		LogFile string `yaml:"logFile"`
	} `yaml:"processing"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Output = "result.fits"
	cfg.Prefix = "img"
	cfg.Weight = 0.8
	cfg.HDR = hdr.DefaultParams()

	cfg.Rescale.OutMin = 0
	cfg.Rescale.OutMax = 1

	cfg.Preview.Gamma = 1
	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Returns the compositor parameters for the given number of channels. If no weights
// are configured, the first channel gets weight 1 and all others the configured weight
func (cfg *Config) Params(numChannels int) hdr.Params {
	p := cfg.HDR
	if len(p.Weights) == 0 && numChannels > 0 {
		p.Weights = make([]float64, numChannels)
		p.Weights[0] = 1
		for i := 1; i < numChannels; i++ {
			p.Weights[i] = cfg.Weight
		}
	}
	return p
}

// Expands the input patterns into file names, keeping pattern order
func (cfg *Config) ExpandInputs() ([]string, error) {
	var res []string
	for _, pattern := range cfg.Inputs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("input pattern %s: %w", pattern, err)
		}
		res = append(res, matches...)
	}
	return res, nil
}

// Checks the configuration for the given number of input channels
func (cfg *Config) Validate(numChannels int) error {
	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", hdr.ErrInvalidParameter)
	}
	if cfg.Output == "" {
		return fmt.Errorf("%w: no output", hdr.ErrInvalidParameter)
	}
	if cfg.Verbose && cfg.Prefix == "" {
		return fmt.Errorf("%w: verbose output without prefix", hdr.ErrInvalidParameter)
	}
	aux := cfg.HDR.SumsOfSquares || cfg.HDR.Average || cfg.HDR.BiasField
	if cfg.HDR.Mode == hdr.ModeMultiLight && aux && cfg.Prefix == "" {
		// auxiliary outputs are only written as prefixed files
		return fmt.Errorf("%w: auxiliary outputs without prefix", hdr.ErrInvalidParameter)
	}
	if cfg.Rescale.Enabled && !(cfg.Rescale.OutMax > cfg.Rescale.OutMin) {
		return fmt.Errorf("%w: rescale range [%g, %g]", hdr.ErrInvalidParameter, cfg.Rescale.OutMin, cfg.Rescale.OutMax)
	}
	if cfg.Processing.Threads < 0 || cfg.Processing.MemoryMB < 0 {
		return fmt.Errorf("%w: threads %d memory %d MB", hdr.ErrInvalidParameter, cfg.Processing.Threads, cfg.Processing.MemoryMB)
	}
	p := cfg.Params(numChannels)
	return p.Validate(numChannels)
}

// Applies the processing limits to the operator context
func (cfg *Config) ApplyTo(c *ops.Context) {
	if cfg.Processing.Threads > 0 {
		c.MaxThreads = cfg.Processing.Threads
	} else {
		c.MaxThreads = runtime.GOMAXPROCS(0)
	}
	if cfg.Processing.MemoryMB > 0 {
		c.GridMemoryMB = cfg.Processing.MemoryMB
	}
}

// Builds the operator sequence for the job on the given number of input channels. In multi-light mode
// all inputs are composited into the output. In tone map mode the first input is tone mapped
func (cfg *Config) Sequence(numChannels int) (*ops.OpSequence, error) {
	if err := cfg.Validate(numChannels); err != nil {
		return nil, err
	}
	p := cfg.Params(numChannels)
	seq := ops.NewOpSequence(ops.NewOpLoadMany(cfg.Inputs))
	if cfg.Rescale.Enabled {
		seq.Append(ops.NewOpForEach(hdrops.NewOpRescale(cfg.Rescale.OutMin, cfg.Rescale.OutMax)))
	}

	if p.Mode == hdr.ModeMultiLight {
		seq.Append(hdrops.NewOpMultiLight(p, cfg.Prefix, cfg.Verbose), ops.NewOpSelect(0))
	} else {
		seq.Append(ops.NewOpSelect(0), hdrops.NewOpToneMap(p.RangeSigma, p.DomainSigma, p.Contrast))
	}

	seq.Append(ops.NewOpSave(cfg.Output))
	if cfg.Preview.FileName != "" {
		preview := ops.NewOpSave(cfg.Preview.FileName)
		preview.Gamma = cfg.Preview.Gamma
		preview.FalseColor = cfg.Preview.FalseColor
		preview.ToneMapper = cfg.Preview.ToneMapper
		seq.Append(preview)
	}
	return seq, nil
}
