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

package neighborhood

import (
	"math"

	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/parallel"
)

// Clamps out of bounds coordinates to the nearest valid index
func clamp(size, x int) int {
	if x < 0 {
		return 0
	}
	if x >= size {
		return size - 1
	}
	return x
}

// Returns the gradient magnitude of the field, using central differences scaled
// by the physical spacing. Neighbors beyond the boundary are replaced by the boundary sample
func GradientMagnitude(f *field.Field, workers int) *field.Field {
	res := field.NewLike(f)
	strides := field.Strides(f.Size)
	dims := f.Dims()

	parallel.For(f.Len(), workers, parallel.ChunkSize(8*(dims+1)), func(start, end int) {
		idx := make([]int, dims)
		for i := start; i < end; i++ {
			f.Coords(i, idx)
			sumSq := 0.0
			for a := 0; a < dims; a++ {
				n := f.Size[a]
				if n < 2 {
					continue
				}
				lo := i + (clamp(n, idx[a]-1)-idx[a])*strides[a]
				hi := i + (clamp(n, idx[a]+1)-idx[a])*strides[a]
				d := float64(f.Data[hi]-f.Data[lo]) / (2 * f.Spacing[a])
				sumSq += d * d
			}
			res.Data[i] = float32(math.Sqrt(sumSq))
		}
	})
	return res
}

// Returns the minimum of each sample's box neighborhood of the given radius.
// The box is clamped at the boundary. Computed separably, one axis at a time
func LocalMinimum(f *field.Field, radius int, workers int) *field.Field {
	src := append([]float32(nil), f.Data...)
	dst := make([]float32, len(src))
	strides := field.Strides(f.Size)

	for axis, length := range f.Size {
		if length < 2 || radius < 1 {
			continue
		}
		stride := strides[axis]
		numLines := len(src) / length
		parallel.For(numLines, workers, parallel.ChunkSize(4*length), func(start, end int) {
			for line := start; line < end; line++ {
				outer, inner := line/stride, line%stride
				base := outer*stride*length + inner
				for x := 0; x < length; x++ {
					m := src[base+clamp(length, x-radius)*stride]
					for x1 := clamp(length, x-radius) + 1; x1 <= clamp(length, x+radius); x1++ {
						if v := src[base+x1*stride]; v < m {
							m = v
						}
					}
					dst[base+x*stride] = m
				}
			}
		})
		src, dst = dst, src
	}

	res := field.NewWithGeometry(f.Size, f.Origin, f.Spacing, src)
	res.ID, res.FileName = f.ID, f.FileName
	return res
}

// Returns the minimum of the box neighborhood of the given radius around the sample at idx.
// The box is clamped at the boundary
func MinimumAt(f *field.Field, idx []int, radius int) float32 {
	dims := f.Dims()
	lo, hi := make([]int, dims), make([]int, dims)
	for a := range lo {
		lo[a], hi[a] = clamp(f.Size[a], idx[a]-radius), clamp(f.Size[a], idx[a]+radius)
	}
	cur := append([]int(nil), lo...)
	m := float32(math.MaxFloat32)
	for {
		if v := f.At(cur); v < m {
			m = v
		}
		// advance odometer
		a := 0
		for ; a < dims; a++ {
			cur[a]++
			if cur[a] <= hi[a] {
				break
			}
			cur[a] = lo[a]
		}
		if a == dims {
			return m
		}
	}
}
