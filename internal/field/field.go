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

package field

import (
	"fmt"
	"math"
	"strings"
)

// A scalar field on a regular grid, e.g. a 2D image or a 3D volume.
// Physical position of a sample is Origin + index*Spacing, per axis.
type Field struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Size    []int     // Axis dimensions. Most quickly varying dimension first (i.e. X,Y,Z)
	Origin  []float64 // Physical position of the sample at index 0
	Spacing []float64 // Physical distance between adjacent samples, per axis

	Data []float32 // The sample values
}

// Creates a zero-initialized field with the given size, origin 0 and spacing 1
func New(size []int) *Field {
	origin := make([]float64, len(size))
	spacing := make([]float64, len(size))
	for i := range spacing {
		spacing[i] = 1
	}
	return NewWithGeometry(size, origin, spacing, nil)
}

// Creates a field with the given geometry. Data is not copied, allocated if nil. Geometry slices are deep copied
func NewWithGeometry(size []int, origin, spacing []float64, data []float32) *Field {
	if data == nil {
		data = make([]float32, NumSamples(size))
	}
	return &Field{
		Size:    append([]int(nil), size...),
		Origin:  append([]float64(nil), origin...),
		Spacing: append([]float64(nil), spacing...),
		Data:    data,
	}
}

// Creates a zero-initialized field with the same geometry, ID and file name as the given one
func NewLike(f *Field) *Field {
	res := NewWithGeometry(f.Size, f.Origin, f.Spacing, nil)
	res.ID, res.FileName = f.ID, f.FileName
	return res
}

// Returns a deep copy of the field
func (f *Field) Clone() *Field {
	res := NewLike(f)
	copy(res.Data, f.Data)
	return res
}

// Returns the number of samples for the given axis dimensions
func NumSamples(size []int) int {
	n := 1
	for _, s := range size {
		n *= s
	}
	return n
}

// Number of axes
func (f *Field) Dims() int { return len(f.Size) }

// Number of samples
func (f *Field) Len() int { return len(f.Data) }

// Returns the flattened-index stride of each axis
func Strides(size []int) []int {
	strides := make([]int, len(size))
	s := 1
	for i, n := range size {
		strides[i] = s
		s *= n
	}
	return strides
}

// Returns the flattened index of the given multi-dimensional index
func (f *Field) Index(idx []int) int {
	res, stride := 0, 1
	for i, n := range f.Size {
		res += idx[i] * stride
		stride *= n
	}
	return res
}

// Stores the multi-dimensional index of the given flattened index in idx, which must have length Dims()
func (f *Field) Coords(index int, idx []int) {
	for i, n := range f.Size {
		idx[i] = index % n
		index /= n
	}
}

// Returns the physical position of the sample at the given multi-dimensional index
func (f *Field) Position(idx []int) []float64 {
	pos := make([]float64, len(idx))
	for i := range idx {
		pos[i] = f.Origin[i] + float64(idx[i])*f.Spacing[i]
	}
	return pos
}

// Returns the value at the given multi-dimensional index
func (f *Field) At(idx []int) float32 { return f.Data[f.Index(idx)] }

// Sets the value at the given multi-dimensional index
func (f *Field) Set(idx []int, v float32) { f.Data[f.Index(idx)] = v }

// Returns the region covering all samples of the field
func (f *Field) LargestRegion() Region {
	return Region{Index: make([]int, len(f.Size)), Size: append([]int(nil), f.Size...)}
}

// Returns true if both fields have the same size. Origin and spacing
// are compared with a small relative tolerance
func (f *Field) SameGeometry(g *Field) bool {
	if len(f.Size) != len(g.Size) {
		return false
	}
	for i := range f.Size {
		if f.Size[i] != g.Size[i] {
			return false
		}
		if !closeTo(f.Origin[i], g.Origin[i]) || !closeTo(f.Spacing[i], g.Spacing[i]) {
			return false
		}
	}
	return true
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// Returns true if both fields have identical sizes
func (f *Field) SameSize(g *Field) bool {
	if len(f.Size) != len(g.Size) {
		return false
	}
	for i := range f.Size {
		if f.Size[i] != g.Size[i] {
			return false
		}
	}
	return true
}

// Returns the dimensions as a string, e.g. 512x512x64
func (f *Field) DimensionsToString() string {
	return DimensionsToString(f.Size)
}

func DimensionsToString(size []int) string {
	b := strings.Builder{}
	for i, n := range size {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", n)
		} else {
			fmt.Fprintf(&b, "%d", n)
		}
	}
	return b.String()
}

// Returns a copy of the samples within the given region, as a new field
// whose origin is shifted to the first sample of the region. The region
// must be inside the field
func (f *Field) Crop(r Region) *Field {
	origin := make([]float64, len(f.Size))
	for i := range origin {
		origin[i] = f.Origin[i] + float64(r.Index[i])*f.Spacing[i]
	}
	res := NewWithGeometry(r.Size, origin, f.Spacing, nil)
	res.ID, res.FileName = f.ID, f.FileName

	idx := make([]int, len(f.Size))
	local := make([]int, len(f.Size))
	for i := range res.Data {
		res.Coords(i, local)
		for a := range idx {
			idx[a] = local[a] + r.Index[a]
		}
		res.Data[i] = f.Data[f.Index(idx)]
	}
	return res
}
