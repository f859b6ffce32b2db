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

// Package bilateral implements an approximate bilateral filter on a coarse
// higher-dimensional grid: splat the samples into the grid, blur it, and
// slice the result back at each sample's position and intensity.
// See Paris and Durand, "A Fast Approximation of the Bilateral Filter using
// a Signal Processing Approach", ECCV 2006.
package bilateral

import (
	"context"
	"fmt"
	"math"

	"github.com/mlnoga/hdrlight/internal/blur"
	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/grid"
	"github.com/mlnoga/hdrlight/internal/parallel"
)

const (
	DefaultSamplingRate = 2.0 // grid bins per sigma
	Padding             = 2   // empty bins on each side of each grid axis
	gridSigma           = 1.0 // blur of the grid, in bins
	maxGridBins         = 1 << 31
)

// Parameters of the bilateral filter
type Params struct {
	DomainSigma  []float64 `json:"domainSigma"`  // spatial sigma in physical units, one per axis, or a single value for all axes
	RangeSigma   float64   `json:"rangeSigma"`   // intensity sigma
	SamplingRate float64   `json:"samplingRate"` // grid bins per sigma, 0 selects DefaultSamplingRate
	Strict       bool      `json:"strict"`       // fail instead of cropping if the dilated input region exceeds the field
}

// Creates filter parameters with the same domain sigma on all axes
func NewParams(domainSigma, rangeSigma float64) Params {
	return Params{DomainSigma: []float64{domainSigma}, RangeSigma: rangeSigma}
}

// Returns the per-axis domain sigmas and the sampling rate, or an error if they are invalid
func (p Params) resolve(f *field.Field) (domain []float64, rate float64, err error) {
	dims := f.Dims()
	switch len(p.DomainSigma) {
	case 1:
		domain = make([]float64, dims)
		for i := range domain {
			domain[i] = p.DomainSigma[0]
		}
	case dims:
		domain = append([]float64(nil), p.DomainSigma...)
	default:
		return nil, 0, fmt.Errorf("%w: %d domain sigmas for %d axes", ErrInvalidParameter, len(p.DomainSigma), dims)
	}
	for i, d := range domain {
		if !(d > 0) || math.IsInf(d, 0) {
			return nil, 0, fmt.Errorf("%w: domain sigma %g on axis %d", ErrInvalidParameter, d, i)
		}
		if !(f.Spacing[i] > 0) {
			return nil, 0, fmt.Errorf("%w: spacing %g on axis %d", ErrInvalidParameter, f.Spacing[i], i)
		}
	}
	if !(p.RangeSigma > 0) || math.IsInf(p.RangeSigma, 0) {
		return nil, 0, fmt.Errorf("%w: range sigma %g", ErrInvalidParameter, p.RangeSigma)
	}
	rate = p.SamplingRate
	if rate == 0 {
		rate = DefaultSamplingRate
	}
	if !(rate > 0) {
		return nil, 0, fmt.Errorf("%w: sampling rate %g", ErrInvalidParameter, rate)
	}
	return domain, rate, nil
}

// Applies the bilateral filter to the whole field. Near the field boundary
// the grid sees fewer samples, which is accepted. Returns a new field of the
// same geometry
func Filter(ctx context.Context, in *field.Field, p Params, opt Options) (*field.Field, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil input", ErrInvalidParameter)
	}
	p.Strict = false
	return FilterRegion(ctx, in, in.LargestRegion(), p, opt)
}

// Applies the bilateral filter to the given region of the field, reading samples up to
// twice the domain sigma beyond it. Returns a new field covering the region only
func FilterRegion(ctx context.Context, in *field.Field, region field.Region, p Params, opt Options) (*field.Field, error) {
	if in == nil || len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidParameter)
	}
	dims := in.Dims()
	if dims+1 > grid.MaxDims {
		return nil, fmt.Errorf("%w: %d axes exceed the grid limit of %d", ErrInvalidParameter, dims, grid.MaxDims-1)
	}
	domain, rate, err := p.resolve(in)
	if err != nil {
		return nil, err
	}

	// region requested from the input
	available := in.LargestRegion()
	if !region.IsInside(available) {
		return nil, &InvalidRegionError{Stage: "bilateral output", Requested: region, Available: available}
	}
	bins := make([]float64, dims) // spatial bin size in index units
	margin := make([]int, dims)
	for i := range bins {
		bins[i] = domain[i] / (rate * in.Spacing[i])
		margin[i] = int(math.Ceil(2 * domain[i] / in.Spacing[i]))
	}
	inRegion := region.Dilate(margin)
	if !inRegion.IsInside(available) {
		if p.Strict {
			return nil, &InvalidRegionError{Stage: "bilateral input", Requested: inRegion, Available: available}
		}
		inRegion, _ = inRegion.Crop(available)
	}
	rangeBin := p.RangeSigma / rate

	min, max := regionMinMax(in, inRegion)
	if math.IsNaN(float64(min)) || math.IsInf(float64(min), 0) || math.IsInf(float64(max), 0) {
		return nil, fmt.Errorf("%w: non-finite input values in [%g, %g]", ErrInvalidParameter, min, max)
	}

	// allocate grids
	size := make([]int, dims+1)
	numBins := 1.0
	for i := 0; i < dims; i++ {
		size[i] = int(float64(inRegion.Size[i]-1)/bins[i]) + 1 + 2*Padding
		numBins *= float64(size[i])
	}
	intensityBins := float64(max-min)/rangeBin + 1 + 2*Padding
	numBins *= intensityBins
	if numBins > maxGridBins {
		return nil, fmt.Errorf("%w: %.4g bins", ErrGridTooLarge, numBins)
	}
	size[dims] = int(float64(max-min)/rangeBin) + 1 + 2*Padding
	needed := 3 * grid.Bytes(size) // accumulator, weights and blur scratchpad
	fmt.Fprintf(opt.Writer(), "%d: Bilateral filter domain %v range %.4g on region %v, grid %s using %.1f MiB\n",
		in.ID, domain, p.RangeSigma, region, field.DimensionsToString(size), float64(needed)/(1024*1024))
	if opt.MemoryBudget > 0 && needed > opt.MemoryBudget {
		return nil, fmt.Errorf("%w: %d bytes needed for grid %s, %d available", ErrGridTooLarge,
			needed, field.DimensionsToString(size), opt.MemoryBudget)
	}
	acc, weight := grid.New(size), grid.New(size)

	// splat
	idx := make([]int, dims)
	coords := make([]int, dims+1)
	numIn := inRegion.NumSamples()
	for i := 0; i < numIn; i++ {
		inRegion.Coords(i, idx)
		v := in.Data[in.Index(idx)]
		for a := 0; a < dims; a++ {
			coords[a] = int(float64(idx[a]-inRegion.Index[a])/bins[a]) + Padding
		}
		coords[dims] = int(float64(v-min)/rangeBin) + Padding
		gi := acc.Index(coords)
		acc.Data[gi] += v
		weight.Data[gi] += 1
	}
	opt.Report("splat", 1, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// blur
	kernel := blur.GaussianKernel1D(gridSigma)
	tmp := make([]float32, len(acc.Data))
	for axis := 0; axis <= dims; axis++ {
		acc.BlurAxis(axis, kernel, tmp, opt.Workers)
		weight.BlurAxis(axis, kernel, tmp, opt.Workers)
		opt.Report("blur", axis+1, dims+1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	tmp = nil

	norm := grid.Normalize(acc, weight, opt.Workers)
	acc, weight = nil, nil
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// slice, aligning each sample with the centroid of the bins it was splatted into
	shift := make([]float64, dims+1)
	for a := 0; a < dims; a++ {
		if bins[a] > 1 {
			shift[a] = 0.5 - 0.5/bins[a]
		}
	}
	shift[dims] = 0.5

	out := in.Crop(region)
	numOut := region.NumSamples()
	parallel.For(numOut, opt.Workers, parallel.ChunkSize(64), func(start, end int) {
		idx := make([]int, dims)
		pos := make([]float64, dims+1)
		base := make([]int, dims+1)
		frac := make([]float64, dims+1)
		for i := start; i < end; i++ {
			region.Coords(i, idx)
			v := in.Data[in.Index(idx)]
			for a := 0; a < dims; a++ {
				pos[a] = float64(idx[a]-inRegion.Index[a])/bins[a] - shift[a] + Padding
			}
			pos[dims] = float64(v-min)/rangeBin - shift[dims] + Padding
			out.Data[i] = norm.Interpolate(pos, base, frac)
		}
	})
	opt.Report("slice", 1, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Returns minimum and maximum of the field within the region
func regionMinMax(f *field.Field, r field.Region) (min, max float32) {
	idx := make([]int, f.Dims())
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	n := r.NumSamples()
	for i := 0; i < n; i++ {
		r.Coords(i, idx)
		v := f.Data[f.Index(idx)]
		if math.IsNaN(float64(v)) {
			return v, v
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
