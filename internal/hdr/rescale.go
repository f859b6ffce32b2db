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
	"fmt"

	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/stats"
)

// Linearly rescales the samples of the field to [outMin, outMax]. Use outMin>0
// to prepare a field for tone mapping
func Rescale(f *field.Field, outMin, outMax float32) (*field.Field, error) {
	if f == nil || f.Len() == 0 {
		return nil, fmt.Errorf("rescale: %w: empty input", ErrInvalidParameter)
	}
	if !(outMax > outMin) {
		return nil, fmt.Errorf("rescale: %w: output range [%g, %g]", ErrInvalidParameter, outMin, outMax)
	}
	min, max := stats.MinMax(f.Data)
	if !(max > min) {
		return nil, &DomainError{Stage: "rescale", Index: -1, Value: float64(min), Reason: "field is flat"}
	}
	scale := (outMax - outMin) / (max - min)
	res := field.NewLike(f)
	for i, v := range f.Data {
		res.Data[i] = (v-min)*scale + outMin
	}
	return res, nil
}
