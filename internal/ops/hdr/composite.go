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
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/fits"
	core "github.com/mlnoga/hdrlight/internal/hdr"
	"github.com/mlnoga/hdrlight/internal/ops"
)

// Composites all inputs into a single high dynamic range field with multiscale detail
// enhancement. Takes n inputs. Produces the output, followed by the sums of squares,
// average and bias field if requested, with IDs numbered in that order
type OpMultiLight struct {
	ops.OpBase
	Params  core.Params `json:"params"`
	Prefix  string      `json:"prefix"`  // if set, writes final layers and auxiliary outputs to FITS files starting with this prefix
	Verbose bool        `json:"verbose"` // with prefix, also writes pyramid levels and per channel layers
}

var _ ops.Operator = (*OpMultiLight)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMultiLightDefault() }) } // register the operator for JSON decoding

func NewOpMultiLightDefault() *OpMultiLight {
	p := core.DefaultParams()
	p.Mode = core.ModeMultiLight
	return NewOpMultiLight(p, "", false)
}

func NewOpMultiLight(p core.Params, prefix string, verbose bool) *OpMultiLight {
	return &OpMultiLight{
		OpBase:  ops.OpBase{Type: "multiLight", Active: true},
		Params:  p,
		Prefix:  prefix,
		Verbose: verbose,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMultiLight) UnmarshalJSON(data []byte) error {
	type defaults OpMultiLight
	def := defaults(*NewOpMultiLightDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpMultiLight(def)
	return nil
}

func (op *OpMultiLight) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if !op.Active {
		return ins, nil
	}
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator: %w", op.Type, &core.MissingInputError{Channel: -1})
	}
	if op.Prefix != "" {
		if err := c.CheckPath(op.Prefix); err != nil {
			return nil, fmt.Errorf("%s operator: %w", op.Type, err)
		}
	}
	p := op.Params
	p.Mode = core.ModeMultiLight
	if err := p.Validate(len(ins)); err != nil {
		return nil, fmt.Errorf("%s operator: %w", op.Type, err)
	}

	once := sync.Once{}
	var res *core.Result
	var resErr error
	run := func() {
		res, resErr = op.apply(ins, p, c)
	}

	numOuts := 1
	for _, b := range []bool{p.SumsOfSquares, p.Average, p.BiasField} {
		if b {
			numOuts++
		}
	}
	outs = make([]ops.Promise, numOuts)
	for i := range outs {
		i := i
		outs[i] = func() (*field.Field, error) {
			once.Do(run)
			if resErr != nil {
				return nil, resErr
			}
			return resultOutputs(res)[i], nil
		}
	}
	return outs, nil
}

func (op *OpMultiLight) apply(ins []ops.Promise, p core.Params, c *ops.Context) (*core.Result, error) {
	channels, err := ops.MaterializeAll(ins, c.MaxThreads, false)
	if err != nil {
		return nil, err
	}
	res, err := core.Composite(c.Context(), channels, p, c.Options(len(channels)))
	if err != nil {
		return nil, err
	}
	for i, f := range resultOutputs(res) {
		f.ID = i
	}
	if op.Prefix != "" {
		if err := WriteDiagnostics(res, op.Prefix, op.Verbose, c.Log); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Returns the output followed by the auxiliary outputs present in the result
func resultOutputs(res *core.Result) []*field.Field {
	outs := []*field.Field{res.Output}
	for _, f := range []*field.Field{res.SumsOfSquares, res.Average, res.BiasField} {
		if f != nil {
			outs = append(outs, f)
		}
	}
	return outs
}

// Writes the final layers and auxiliary outputs of the compositor as FITS files starting with the given prefix.
// If verbose, also writes the pyramid levels and details of the first channel, and the layers of each channel
func WriteDiagnostics(res *core.Result, prefix string, verbose bool, logWriter io.Writer) error {
	type namedField struct {
		name string
		f    *field.Field
	}
	files := []namedField{}
	add := func(name string, f *field.Field) {
		if f != nil {
			files = append(files, namedField{prefix + name + ".fits", f})
		}
	}

	if verbose && len(res.Channels) > 0 && res.Channels[0].Pyramid != nil {
		pyr := res.Channels[0].Pyramid
		for k := range pyr.Levels {
			add(fmt.Sprintf("_bilateral_level_%d", k), pyr.Levels[k])
			add(fmt.Sprintf("_diff_level_%d", k), pyr.Details[k])
		}
	}
	if verbose {
		for j, ch := range res.Channels {
			add(fmt.Sprintf("_image_%d_base", j), ch.Base)
			add(fmt.Sprintf("_image_%d_details", j), ch.Detail)
		}
	}
	add("_final_base", res.Base)
	add("_final_detail", res.Detail)
	add("_sos", res.SumsOfSquares)
	add("_average", res.Average)
	add("_bias", res.BiasField)

	for _, file := range files {
		fmt.Fprintf(logWriter, "%d: Writing %s sample FITS to %s\n", file.f.ID, file.f.DimensionsToString(), file.name)
		if err := fits.WriteFile(file.f, file.name); err != nil {
			return fmt.Errorf("writing %s: %w", file.name, err)
		}
	}
	return nil
}
