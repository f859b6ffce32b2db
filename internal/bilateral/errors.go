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

package bilateral

import (
	"errors"
	"fmt"

	"github.com/mlnoga/hdrlight/internal/field"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrGridTooLarge     = errors.New("bilateral grid exceeds memory budget")
)

// A requested region which the input cannot provide
type InvalidRegionError struct {
	Stage     string
	Requested field.Region
	Available field.Region
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("%s: region %v is not inside available region %v", e.Stage, e.Requested, e.Available)
}
