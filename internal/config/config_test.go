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

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/fits"
	"github.com/mlnoga/hdrlight/internal/hdr"
	"github.com/mlnoga/hdrlight/internal/ops"
	hdrops "github.com/mlnoga/hdrlight/internal/ops/hdr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, hdr.DefaultParams(), cfg.HDR)
	assert.Equal(t, "result.fits", cfg.Output)
	assert.Equal(t, 0.8, cfg.Weight)
	assert.Equal(t, float32(1), cfg.Preview.Gamma)

	loaded, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	yaml := `
inputs: ["a_*.fits", "b.fits"]
output: out.fits
verbose: true
hdr:
  mode: multiLight
  levels: 4
  rangeSigma: 0.5
  sumsOfSquares: true
rescale:
  enabled: true
  outMin: 0.01
processing:
  threads: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a_*.fits", "b.fits"}, cfg.Inputs)
	assert.Equal(t, "out.fits", cfg.Output)
	assert.Equal(t, "img", cfg.Prefix)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, hdr.ModeMultiLight, cfg.HDR.Mode)
	assert.Equal(t, 4, cfg.HDR.Levels)
	assert.Equal(t, 0.5, cfg.HDR.RangeSigma)
	assert.Equal(t, 20.0, cfg.HDR.DomainSigma)
	assert.Equal(t, 0.8, cfg.HDR.Beta)
	assert.True(t, cfg.HDR.SumsOfSquares)
	assert.True(t, cfg.Rescale.Enabled)
	assert.Equal(t, float32(0.01), cfg.Rescale.OutMin)
	assert.Equal(t, float32(1), cfg.Rescale.OutMax)
	assert.Equal(t, 3, cfg.Processing.Threads)

	c := &ops.Context{GridMemoryMB: 1000}
	cfg.ApplyTo(c)
	assert.Equal(t, 3, c.MaxThreads)
	assert.Equal(t, 1000, c.GridMemoryMB)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	tcs := []string{
		"hdr:\n  mode: fancy\n",
		"hdr: [1, 2]\n",
		"inputs: {\n",
	}
	for i, tc := range tcs {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(tc), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err, "case %d", i)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "job.yaml")
	cfg := DefaultConfig()
	cfg.Inputs = []string{"x.fits"}
	cfg.HDR.Mode = hdr.ModeMultiLight
	cfg.HDR.Weights = []float64{1, 0.5}
	cfg.Preview.FileName = "x.jpg"
	cfg.Preview.ToneMapper = "drago03"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestParamsWeights(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []float64{1, 0.8, 0.8}, cfg.Params(3).Weights)
	assert.Nil(t, cfg.HDR.Weights)

	cfg.HDR.Weights = []float64{2, 3}
	assert.Equal(t, []float64{2, 3}, cfg.Params(2).Weights)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Inputs = []string{"*.fits"}
		return cfg
	}
	assert.NoError(t, valid().Validate(2))

	tcs := []func(*Config){
		func(c *Config) { c.Inputs = nil },
		func(c *Config) { c.Output = "" },
		func(c *Config) { c.Verbose, c.Prefix = true, "" },
		func(c *Config) { c.Rescale.Enabled, c.Rescale.OutMax = true, 0 },
		func(c *Config) { c.Processing.Threads = -1 },
		func(c *Config) { c.HDR.RangeSigma = 0 },
		func(c *Config) { c.HDR.Weights = []float64{1} },
		func(c *Config) { c.HDR.Lambda = 0 },
		func(c *Config) { c.HDR.Mode, c.HDR.Average, c.Prefix = hdr.ModeMultiLight, true, "" },
		func(c *Config) { c.HDR.Mode, c.HDR.BiasField, c.Prefix = hdr.ModeMultiLight, true, "" },
	}
	for i, tc := range tcs {
		cfg := valid()
		tc(cfg)
		assert.ErrorIs(t, cfg.Validate(2), hdr.ErrInvalidParameter, "case %d", i)
	}

	// auxiliary outputs are written with a prefix, and not computed when tone mapping
	cfg := valid()
	cfg.HDR.Mode, cfg.HDR.SumsOfSquares = hdr.ModeMultiLight, true
	assert.NoError(t, cfg.Validate(2))
	cfg.HDR.Mode, cfg.Prefix = hdr.ModeToneMap, ""
	assert.NoError(t, cfg.Validate(2))
}

func TestSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Inputs = []string{"*.fits"}
	cfg.Rescale.Enabled = true
	cfg.HDR.Mode = hdr.ModeMultiLight
	cfg.Preview.FileName = "preview.jpg"
	seq, err := cfg.Sequence(2)
	require.NoError(t, err)
	require.Len(t, seq.Steps, 6)
	assert.IsType(t, &ops.OpLoadMany{}, seq.Steps[0])
	assert.IsType(t, &ops.OpForEach{}, seq.Steps[1])
	assert.IsType(t, &hdrops.OpMultiLight{}, seq.Steps[2])
	assert.IsType(t, &ops.OpSelect{}, seq.Steps[3])
	assert.IsType(t, &ops.OpSave{}, seq.Steps[4])
	assert.Equal(t, []float64{1, 0.8}, seq.Steps[2].(*hdrops.OpMultiLight).Params.Weights)

	cfg = DefaultConfig()
	cfg.Inputs = []string{"*.fits"}
	seq, err = cfg.Sequence(1)
	require.NoError(t, err)
	require.Len(t, seq.Steps, 4)
	assert.IsType(t, &ops.OpSelect{}, seq.Steps[1])
	assert.IsType(t, &hdrops.OpToneMap{}, seq.Steps[2])

	cfg.Inputs = nil
	_, err = cfg.Sequence(1)
	assert.Error(t, err)
}

func TestRunJob(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		f := field.New([]int{12, 10})
		for j := range f.Data {
			f.Data[j] = float32(1+i) * (1 + float32(j%12)/4)
		}
		require.NoError(t, fits.WriteFile(f, filepath.Join(dir, "in_"+string(rune('a'+i))+".fits")))
	}

	cfg := DefaultConfig()
	cfg.Inputs = []string{filepath.Join(dir, "in_*.fits")}
	cfg.Output = filepath.Join(dir, "out.fits")
	cfg.Prefix = filepath.Join(dir, "img")
	cfg.HDR.Mode = hdr.ModeMultiLight
	cfg.HDR.Levels, cfg.HDR.DomainSigma, cfg.HDR.RangeSigma = 2, 2, 1
	cfg.HDR.Average = true

	names, err := cfg.ExpandInputs()
	require.NoError(t, err)
	require.Len(t, names, 2)
	seq, err := cfg.Sequence(len(names))
	require.NoError(t, err)

	log := bytes.Buffer{}
	c := ops.NewContext(&log) // serializes log writes from concurrent channels
	c.MaxThreads = 2
	promises, err := seq.MakePromises(nil, c)
	require.NoError(t, err)
	outs, err := ops.MaterializeAll(promises, c.MaxThreads, false)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, []int{12, 10}, outs[0].Size)

	for _, name := range []string{"out.fits", "img_final_base.fits", "img_final_detail.fits", "img_average.fits"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Contains(t, log.String(), "Found 2 files.")
}
