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

import "fmt"

// An axis-aligned box of sample indices
type Region struct {
	Index []int // First index, per axis
	Size  []int // Number of samples, per axis
}

// Creates a region from the given index and size. Slices are deep copied
func NewRegion(index, size []int) Region {
	return Region{Index: append([]int(nil), index...), Size: append([]int(nil), size...)}
}

// Number of samples in the region
func (r Region) NumSamples() int { return NumSamples(r.Size) }

func (r Region) String() string {
	return fmt.Sprintf("index %v size %v", r.Index, r.Size)
}

// Stores the absolute multi-dimensional index of the i-th sample of the region in idx,
// counting with the first axis varying fastest
func (r Region) Coords(i int, idx []int) {
	for a, n := range r.Size {
		idx[a] = r.Index[a] + i%n
		i /= n
	}
}

// Returns a copy of the region grown by the given radius on each side of each axis
func (r Region) Dilate(radius []int) Region {
	res := NewRegion(r.Index, r.Size)
	for i := range res.Index {
		res.Index[i] -= radius[i]
		res.Size[i] += 2 * radius[i]
	}
	return res
}

// Returns true if the region lies completely within the other region
func (r Region) IsInside(other Region) bool {
	if len(r.Index) != len(other.Index) {
		return false
	}
	for i := range r.Index {
		if r.Size[i] <= 0 {
			return false
		}
		if r.Index[i] < other.Index[i] || r.Index[i]+r.Size[i] > other.Index[i]+other.Size[i] {
			return false
		}
	}
	return true
}

// Crops the region to the other region. Returns false if they do not overlap
func (r Region) Crop(other Region) (Region, bool) {
	res := NewRegion(r.Index, r.Size)
	for i := range res.Index {
		lo, hi := res.Index[i], res.Index[i]+res.Size[i]
		if lo < other.Index[i] {
			lo = other.Index[i]
		}
		if hi > other.Index[i]+other.Size[i] {
			hi = other.Index[i] + other.Size[i]
		}
		if hi <= lo {
			return res, false
		}
		res.Index[i], res.Size[i] = lo, hi-lo
	}
	return res, true
}

// Returns true if both regions cover the same samples
func (r Region) Equal(other Region) bool {
	if len(r.Index) != len(other.Index) {
		return false
	}
	for i := range r.Index {
		if r.Index[i] != other.Index[i] || r.Size[i] != other.Size[i] {
			return false
		}
	}
	return true
}
