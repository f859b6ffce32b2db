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
	"context"
	"fmt"
	"math"

	"github.com/mlnoga/hdrlight/internal/bilateral"
	"github.com/mlnoga/hdrlight/internal/field"
)

// Multiscale decomposition of a field. Levels[k] is the bilateral filtered
// version of its predecessor, Details[k] the residual removed at that step
type Pyramid struct {
	Levels  []*field.Field
	Details []*field.Field
}

// Returns the spatial scale multiplier of pyramid level k
func spatialFactor(k int) float64 {
	switch k {
	case 0:
		return 1
	case 1:
		return math.Sqrt(3)
	default:
		return math.Ldexp(1, k-1)
	}
}

// Builds a multi-light image collection: applies the bilateral filter repeatedly,
// halving the range sigma and growing the domain sigma at every level
func BuildPyramid(ctx context.Context, image *field.Field, rangeSigma, domainSigma float64, levels int, opt Options) (*Pyramid, error) {
	if image == nil {
		return nil, fmt.Errorf("pyramid: %w: nil input", ErrInvalidParameter)
	}
	if levels < 1 {
		return nil, fmt.Errorf("pyramid: %w: levels %d", ErrInvalidParameter, levels)
	}
	p := &Pyramid{Levels: make([]*field.Field, levels), Details: make([]*field.Field, levels)}
	input := image
	for k := 0; k < levels; k++ {
		rs := rangeSigma / math.Ldexp(1, k)
		ds := spatialFactor(k) * domainSigma
		fmt.Fprintf(opt.Writer(), "%d: Pyramid level %d of %d, range %.4g domain %.4g\n", image.ID, k+1, levels, rs, ds)

		level, err := bilateral.Filter(ctx, input, bilateral.NewParams(ds, rs), opt)
		if err != nil {
			return nil, fmt.Errorf("pyramid level %d (range %g domain %g): %w", k, rs, ds, err)
		}
		diff := field.NewLike(level)
		for i, v := range input.Data {
			diff.Data[i] = v - level.Data[i]
		}
		p.Levels[k], p.Details[k] = level, diff
		input = level

		opt.Report("pyramid", k+1, levels)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return p, nil
}
