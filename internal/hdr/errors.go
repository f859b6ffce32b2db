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
	"errors"
	"fmt"

	"github.com/mlnoga/hdrlight/internal/bilateral"
)

var (
	ErrInvalidParameter = bilateral.ErrInvalidParameter
	ErrGeometryMismatch = errors.New("channel geometry mismatch")
)

// Fusion was invoked without pyramid levels
type EmptyInputError struct {
	Stage string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: empty input", e.Stage)
}

// A sample or derived quantity lies outside the domain of a computation,
// e.g. a non-positive sample fed to the logarithm. Index is -1 if the
// error does not refer to a single sample
type DomainError struct {
	Stage  string
	Index  int
	Value  float64
	Reason string
}

func (e *DomainError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s (value %g)", e.Stage, e.Reason, e.Value)
	}
	return fmt.Sprintf("%s: %s at sample %d (value %g)", e.Stage, e.Reason, e.Index, e.Value)
}

// A required channel field is absent. Channel is -1 if no channels were given at all
type MissingInputError struct {
	Channel int
}

func (e *MissingInputError) Error() string {
	if e.Channel < 0 {
		return "no input channels"
	}
	return fmt.Sprintf("input channel %d is missing", e.Channel)
}
