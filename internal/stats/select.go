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

package stats

// Select median of an array of float32, i.e. the element at rank len/2 counting from zero.
// Partially reorders the array. Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	return QSelectFloat32(a, (len(a)>>1)+1)
}

// Select kth lowest element from an array of float32, with k counting from one.
// Partially reorders the array. Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		// Hoare partition around the middle element
		pivot := a[(left+right)>>1]
		l, r := left-1, right+1
		for {
			for l++; a[l] < pivot; l++ {
			}
			for r--; a[r] > pivot; r-- {
			}
			if l >= r {
				break
			}
			a[l], a[r] = a[r], a[l]
		}

		offset := r - left + 1
		if k <= offset {
			right = r
		} else {
			left = r + 1
			k -= offset
		}
	}
	return a[left]
}
