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

// Package grid holds the dense higher-dimensional grids of the fast bilateral filter.
// The first axes are coarsened spatial axes, the last axis is quantized intensity.
package grid

import (
	"math"

	"github.com/mlnoga/hdrlight/internal/blur"
	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/parallel"
)

// Bins below this weight normalize to zero
const Epsilon = 1e-8

// Maximum number of grid axes supported by Interpolate
const MaxDims = 8

// A dense n-dimensional grid of float32 values
type Grid struct {
	Size    []int
	Strides []int
	Data    []float32
}

// Creates a zero-initialized grid of the given size
func New(size []int) *Grid {
	return &Grid{
		Size:    append([]int(nil), size...),
		Strides: field.Strides(size),
		Data:    make([]float32, field.NumSamples(size)),
	}
}

// Returns the number of bytes needed by a float32 grid of the given size
func Bytes(size []int) uint64 {
	n := uint64(4)
	for _, s := range size {
		n *= uint64(s)
	}
	return n
}

// Number of axes
func (g *Grid) Dims() int { return len(g.Size) }

// Returns the flattened index of the given bin coordinates
func (g *Grid) Index(coords []int) int {
	res := 0
	for i, c := range coords {
		res += c * g.Strides[i]
	}
	return res
}

// Adds the given value to the bin at the given coordinates
func (g *Grid) Add(coords []int, v float32) {
	g.Data[g.Index(coords)] += v
}

// Blurs the grid along the given axis by the given kernel, with zero extension beyond the grid.
// Uses tmp as scratchpad, which must have the same length as the data
func (g *Grid) BlurAxis(axis int, kernel []float32, tmp []float32, workers int) {
	blur.Convolve(tmp, g.Data, g.Size, axis, kernel, blur.Zero, workers)
	copy(g.Data, tmp)
}

// Returns a new grid holding acc/weight for each bin, or zero where the weight is below Epsilon
func Normalize(acc, weight *Grid, workers int) *Grid {
	res := New(acc.Size)
	parallel.For(len(res.Data), workers, parallel.ChunkSize(12), func(start, end int) {
		for i := start; i < end; i++ {
			w := weight.Data[i]
			if w >= Epsilon {
				res.Data[i] = acc.Data[i] / w
			}
		}
	})
	return res
}

// Interpolates the grid at the given continuous bin coordinates with n-linear interpolation
// over the 2^n surrounding bins. Coordinates are clamped to the grid. Not safe for concurrent
// use of the same scratchpad; base and frac must have length Dims()
func (g *Grid) Interpolate(pos []float64, base []int, frac []float64) float32 {
	dims := len(g.Size)
	offset := 0
	for i, p := range pos {
		hi := float64(g.Size[i] - 1)
		if p < 0 || math.IsNaN(p) {
			p = 0
		} else if p > hi {
			p = hi
		}
		b := int(p)
		if b >= g.Size[i]-1 {
			b = g.Size[i] - 1
			if b > 0 {
				b--
			}
		}
		base[i], frac[i] = b, p-float64(b)
		offset += b * g.Strides[i]
	}

	sum := 0.0
	for corner := 0; corner < 1<<dims; corner++ {
		w := 1.0
		index := offset
		for i := 0; i < dims; i++ {
			if corner&(1<<i) != 0 {
				if g.Size[i] == 1 {
					w = 0
					break
				}
				w *= frac[i]
				index += g.Strides[i]
			} else {
				w *= 1 - frac[i]
			}
		}
		if w != 0 {
			sum += w * float64(g.Data[index])
		}
	}
	return float32(sum)
}
