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

	"github.com/mlnoga/hdrlight/internal/blur"
	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/neighborhood"
	"github.com/mlnoga/hdrlight/internal/parallel"
)

const (
	fusionEpsilon      = 1e-8
	fusionWeightSigma  = 1.0 // blur of the fusion weights, in samples
	localMinimumRadius = 1
)

// Returns the detail compression exponent for each level. Three level
// decompositions compress coarser details less
func LambdaSchedule(lambda float64, levels int) []float64 {
	res := make([]float64, levels)
	for i := range res {
		res[i] = lambda
	}
	if levels == 3 {
		res[1] += 0.05
		res[2] += 0.15
	}
	return res
}

// Multiscale shape detail enhancement. Fuses the first levels entries of the pyramid
// into a single detail field, weighting each level's details by their magnitude and
// penalizing strong edges relative to the local minimum. Returns the coarsest level as
// base. Compresses the detail fields in place
func Fuse(ctx context.Context, levelFields, diffFields []*field.Field, levels int, lambda float64, opt Options) (base, detail *field.Field, err error) {
	if len(levelFields) == 0 || len(diffFields) == 0 {
		return nil, nil, &EmptyInputError{Stage: "fusion"}
	}
	if levels < 1 || levels > len(levelFields) || levels > len(diffFields) {
		return nil, nil, fmt.Errorf("fusion: %w: levels %d for %d level and %d detail fields",
			ErrInvalidParameter, levels, len(levelFields), len(diffFields))
	}
	if !(lambda > 0) || !finite(lambda) {
		return nil, nil, fmt.Errorf("fusion: %w: lambda %g must be positive", ErrInvalidParameter, lambda)
	}
	first := levelFields[0]
	for k := 0; k < levels; k++ {
		if levelFields[k] == nil || diffFields[k] == nil {
			return nil, nil, &EmptyInputError{Stage: fmt.Sprintf("fusion level %d", k)}
		}
		if !levelFields[k].SameSize(first) || !diffFields[k].SameSize(first) {
			return nil, nil, fmt.Errorf("fusion level %d: %w: %s vs %s", k, ErrGeometryMismatch,
				diffFields[k].DimensionsToString(), first.DimensionsToString())
		}
	}

	schedule := LambdaSchedule(lambda, levels)
	detail = field.NewLike(first)
	weight := make([]float32, first.Len())
	chunk := parallel.ChunkSize(16)
	for k := 0; k < levels; k++ {
		level, diff, lk := levelFields[k], diffFields[k], schedule[k]
		fmt.Fprintf(opt.Writer(), "%d: Fusion level %d of %d, lambda %.4g\n", first.ID, k+1, levels, lk)

		gradMag := neighborhood.GradientMagnitude(level, opt.Workers)
		localMin := neighborhood.LocalMinimum(level, localMinimumRadius, opt.Workers)
		parallel.For(len(weight), opt.Workers, chunk, func(start, end int) {
			for i := start; i < end; i++ {
				d := float64(diff.Data[i])
				c := float64(gradMag.Data[i]) / (float64(localMin.Data[i]) + fusionEpsilon)
				weight[i] = float32(math.Exp(math.Abs(d) - c))
				diff.Data[i] = float32(math.Copysign(math.Pow(math.Abs(d), lk), d))
			}
		})
		gradMag, localMin = nil, nil

		smoothed := blur.Data(weight, first.Size, fusionWeightSigma, blur.Mirror, opt.Workers)
		parallel.For(len(weight), opt.Workers, chunk, func(start, end int) {
			for i := start; i < end; i++ {
				detail.Data[i] += diff.Data[i] * smoothed[i]
			}
		})

		opt.Report("fusion", k+1, levels)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
	return levelFields[levels-1].Clone(), detail, nil
}
