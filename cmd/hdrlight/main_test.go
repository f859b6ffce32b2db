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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlnoga/hdrlight/internal/config"
)

func TestAutoName(t *testing.T) {
	tcs := []struct {
		in, suffix, want string
	}{
		{"result.fits", ".log", "result.log"},
		{"dir/result.fits.gz", ".jpg", "dir/result.jpg"},
		{"out.hdr", ".jpg", "out.jpg"},
		{"noext", ".log", "noext.log"},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, autoName(tc.in, tc.suffix), tc.in)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HDR.Levels = 5
	*levels, *beta, *rescaleMax = 2, 0.5, 100

	set := map[string]bool{"beta": true, "rescaleMax": true}
	applyFlags(cfg, []string{"a.fits", "b.fits"}, func(name string) bool { return set[name] })

	assert.Equal(t, []string{"a.fits", "b.fits"}, cfg.Inputs)
	assert.Equal(t, 5, cfg.HDR.Levels) // flag not given explicitly
	assert.Equal(t, 0.5, cfg.HDR.Beta)
	assert.Equal(t, float32(100), cfg.Rescale.OutMax)
	assert.Equal(t, "result.fits", cfg.Output)

	// no inputs on the command line keeps the configured ones
	applyFlags(cfg, nil, func(string) bool { return false })
	assert.Equal(t, []string{"a.fits", "b.fits"}, cfg.Inputs)
}

func TestIsProcessing(t *testing.T) {
	assert.True(t, isProcessing("msde"))
	assert.True(t, isProcessing("stats"))
	assert.False(t, isProcessing("serve"))
	assert.False(t, isProcessing("legal"))
}
