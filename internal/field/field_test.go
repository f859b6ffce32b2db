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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCoordsRoundTrip(t *testing.T) {
	f := New([]int{4, 3, 2})
	require.Equal(t, 24, f.Len())
	assert.Equal(t, []int{1, 4, 12}, Strides(f.Size))

	idx := make([]int, 3)
	for i := 0; i < f.Len(); i++ {
		f.Coords(i, idx)
		assert.Equal(t, i, f.Index(idx))
	}
	assert.Equal(t, 1+2*4+1*12, f.Index([]int{1, 2, 1}))
}

func TestPosition(t *testing.T) {
	f := NewWithGeometry([]int{4, 4}, []float64{10, -5}, []float64{0.5, 2}, nil)
	assert.Equal(t, []float64{11, 1}, f.Position([]int{2, 3}))
}

func TestCrop(t *testing.T) {
	f := NewWithGeometry([]int{4, 3}, []float64{0, 0}, []float64{2, 1}, nil)
	for i := range f.Data {
		f.Data[i] = float32(i)
	}
	c := f.Crop(NewRegion([]int{1, 1}, []int{2, 2}))
	assert.Equal(t, []int{2, 2}, c.Size)
	assert.Equal(t, []float64{2, 1}, c.Origin)
	assert.Equal(t, []float32{5, 6, 9, 10}, c.Data)
}

func TestRegion(t *testing.T) {
	full := NewRegion([]int{0, 0}, []int{8, 8})
	r := NewRegion([]int{2, 2}, []int{3, 3})
	assert.True(t, r.IsInside(full))

	d := r.Dilate([]int{2, 3})
	assert.Equal(t, []int{0, -1}, d.Index)
	assert.Equal(t, []int{7, 9}, d.Size)
	assert.False(t, d.IsInside(full))

	c, ok := d.Crop(full)
	require.True(t, ok)
	assert.True(t, c.Equal(NewRegion([]int{0, 0}, []int{7, 8})))

	idx := make([]int, 2)
	r.Coords(4, idx)
	assert.Equal(t, []int{3, 3}, idx)

	_, ok = NewRegion([]int{9, 0}, []int{2, 2}).Crop(full)
	assert.False(t, ok)
	assert.False(t, NewRegion([]int{0, 0}, []int{0, 2}).IsInside(full))
}

func TestSameGeometry(t *testing.T) {
	a := New([]int{3, 3})
	b := New([]int{3, 3})
	assert.True(t, a.SameGeometry(b))
	b.Spacing[1] = 2
	assert.False(t, a.SameGeometry(b))
	assert.True(t, a.SameSize(b))
	assert.False(t, a.SameSize(New([]int{3})))
	assert.Equal(t, "3x3", a.DimensionsToString())
}
