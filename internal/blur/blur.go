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

package blur

import (
	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/parallel"
)

// Boundary condition for samples outside the data
type Boundary int

const (
	Mirror Boundary = iota // reflect out of bounds coordinates back into the value range
	Zero                   // treat out of bounds samples as zero
)

func (b Boundary) String() string {
	switch b {
	case Mirror:
		return "mirror"
	case Zero:
		return "zero"
	}
	return "unknown"
}

// Check if coordinate is within [0, size-1], and if not, reflect out of bounds coordinates back into the value range.
// Handles offsets larger than the size by reflecting repeatedly
func reflect(size, x int) int {
	if size == 1 {
		return 0
	}
	period := 2 * size
	x %= period
	if x < 0 {
		x += period
	}
	if x >= size {
		x = period - x - 1
	}
	return x
}

// Convolve the n-dimensional data with the given size along the given axis, and store the result in res.
// Lines along the axis are distributed across workers
func Convolve(res, data []float32, size []int, axis int, kernel []float32, b Boundary, workers int) {
	strides := field.Strides(size)
	length, stride := size[axis], strides[axis]
	numLines := len(data) / length
	k := len(kernel) / 2

	chunk := parallel.ChunkSize(4 * length)
	parallel.For(numLines, workers, chunk, func(start, end int) {
		for line := start; line < end; line++ {
			outer, inner := line/stride, line%stride
			base := outer*stride*length + inner
			for x := 0; x < length; x++ {
				sum := float32(0)
				for i := -k; i <= k; i++ {
					x1 := x + i
					if x1 < 0 || x1 >= length {
						if b == Zero {
							continue
						}
						x1 = reflect(length, x1)
					}
					sum += data[base+x1*stride] * kernel[i+k]
				}
				res[base+x*stride] = sum
			}
		}
	})
}

// Blurs the n-dimensional data with the given size by a separable gaussian with the given sigma
// in index units, applied along every axis in turn. Returns a new slice, the input is unchanged
func Data(data []float32, size []int, sigma float64, b Boundary, workers int) []float32 {
	kernel := GaussianKernel1D(sigma)
	src := append([]float32(nil), data...)
	dst := make([]float32, len(data))
	for axis := range size {
		Convolve(dst, src, size, axis, kernel, b, workers)
		src, dst = dst, src
	}
	return src
}

// Blurs the field by a separable gaussian with the given sigma in index units, with mirrored boundaries.
// Returns a new field of the same geometry
func Field(f *field.Field, sigma float64, workers int) *field.Field {
	res := field.NewWithGeometry(f.Size, f.Origin, f.Spacing, Data(f.Data, f.Size, sigma, Mirror, workers))
	res.ID, res.FileName = f.ID, f.FileName
	return res
}
