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

package hdr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/hdrlight/internal/bilateral"
)

// Options for parallelism, memory limits, progress reporting and logging
type Options = bilateral.Options

// Compositing mode
type Mode int

const (
	ModeToneMap Mode = iota
	ModeMultiLight
)

var modeNames = map[Mode]string{ModeToneMap: "toneMap", ModeMultiLight: "multiLight"}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w: mode %d", ErrInvalidParameter, int(m))
	}
	return []byte(m.String()), nil
}

// Parses a mode name, case insensitive
func (m *Mode) UnmarshalText(text []byte) error {
	for k, v := range modeNames {
		if strings.EqualFold(v, string(text)) {
			*m = k
			return nil
		}
	}
	return fmt.Errorf("%w: unknown mode '%s'", ErrInvalidParameter, string(text))
}

// Parameters of the HDR compositor
type Params struct {
	Mode          Mode      `json:"mode"          yaml:"mode"`
	Levels        int       `json:"levels"        yaml:"levels"`        // pyramid depth
	RangeSigma    float64   `json:"rangeSigma"    yaml:"rangeSigma"`    // intensity smoothing scale
	DomainSigma   float64   `json:"domainSigma"   yaml:"domainSigma"`   // spatial smoothing scale, physical units
	Beta          float64   `json:"beta"          yaml:"beta"`          // detail amplification in the final composite
	Lambda        float64   `json:"lambda"        yaml:"lambda"`        // detail compression exponent
	Contrast      float64   `json:"contrast"      yaml:"contrast"`      // tone map dynamic range target
	Weights       []float64 `json:"weights"       yaml:"weights"`       // per channel weights, accepted but not applied
	SumsOfSquares bool      `json:"sumsOfSquares" yaml:"sumsOfSquares"` // compute root sum of squares of the inputs
	Average       bool      `json:"average"       yaml:"average"`       // compute average of the inputs
	BiasField     bool      `json:"biasField"     yaml:"biasField"`     // compute sum of input to output ratios
}

func DefaultParams() Params {
	return Params{
		Mode:        ModeToneMap,
		Levels:      3,
		RangeSigma:  4,
		DomainSigma: 20,
		Beta:        0.8,
		Lambda:      0.8,
		Contrast:    5,
	}
}

// Unmarshal from JSON, using default values for any omitted fields
func (p *Params) UnmarshalJSON(data []byte) error {
	type defaults Params
	def := defaults(DefaultParams())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*p = Params(def)
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Checks the parameters for the given number of channels
func (p *Params) Validate(numChannels int) error {
	if _, ok := modeNames[p.Mode]; !ok {
		return fmt.Errorf("%w: mode %d", ErrInvalidParameter, int(p.Mode))
	}
	if p.Mode == ModeMultiLight && p.Levels < 1 {
		return fmt.Errorf("%w: levels %d", ErrInvalidParameter, p.Levels)
	}
	if !(p.RangeSigma > 0) || !finite(p.RangeSigma) || !(p.DomainSigma > 0) || !finite(p.DomainSigma) {
		return fmt.Errorf("%w: range sigma %g domain sigma %g", ErrInvalidParameter, p.RangeSigma, p.DomainSigma)
	}
	if !finite(p.Beta) || !finite(p.Lambda) || !finite(p.Contrast) {
		return fmt.Errorf("%w: beta %g lambda %g contrast %g", ErrInvalidParameter, p.Beta, p.Lambda, p.Contrast)
	}
	if !(p.Lambda > 0) {
		return fmt.Errorf("%w: lambda %g must be positive", ErrInvalidParameter, p.Lambda)
	}
	if len(p.Weights) != 0 && len(p.Weights) != numChannels {
		return fmt.Errorf("%w: %d weights for %d channels", ErrInvalidParameter, len(p.Weights), numChannels)
	}
	return nil
}

func (p *Params) String() string {
	return fmt.Sprintf("mode %v levels %d range %.4g domain %.4g beta %.4g lambda %.4g contrast %.4g",
		p.Mode, p.Levels, p.RangeSigma, p.DomainSigma, p.Beta, p.Lambda, p.Contrast)
}
