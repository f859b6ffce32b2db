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

// Package hdr wraps the bilateral filter, the tone mapper and the multi-light
// compositor into operators for processing graphs.
package hdr

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/hdrlight/internal/bilateral"
	"github.com/mlnoga/hdrlight/internal/field"
	core "github.com/mlnoga/hdrlight/internal/hdr"
	"github.com/mlnoga/hdrlight/internal/ops"
	"github.com/mlnoga/hdrlight/internal/stats"
)

// Linearly rescales the intensity range of each input to [OutMin, OutMax]. Takes n inputs, produces n outputs
type OpRescale struct {
	ops.OpUnaryBase
	OutMin float32 `json:"outMin"`
	OutMax float32 `json:"outMax"`
}

var _ ops.Operator = (*OpRescale)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpRescaleDefault() }) } // register the operator for JSON decoding

func NewOpRescaleDefault() *OpRescale { return NewOpRescale(0, 1) }

func NewOpRescale(outMin, outMax float32) *OpRescale {
	op := OpRescale{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "rescale", Active: true}},
		OutMin:      outMin,
		OutMax:      outMax,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRescale) UnmarshalJSON(data []byte) error {
	type defaults OpRescale
	def := defaults(*NewOpRescaleDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpRescale(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpRescale) Apply(f *field.Field, c *ops.Context) (result *field.Field, err error) {
	if !op.Active {
		return f, nil
	}
	min, max := stats.MinMax(f.Data)
	fmt.Fprintf(c.Log, "%d: Rescaling from [%.4g,%.4g] to [%.4g,%.4g]\n", f.ID, min, max, op.OutMin, op.OutMax)
	return core.Rescale(f, op.OutMin, op.OutMax)
}

// Applies the fast bilateral filter to each input. Takes n inputs, produces n outputs
type OpBilateral struct {
	ops.OpUnaryBase
	DomainSigma  []float64 `json:"domainSigma"`  // one value for all axes, or one per axis
	RangeSigma   float64   `json:"rangeSigma"`
	SamplingRate float64   `json:"samplingRate"` // 0 selects the default
}

var _ ops.Operator = (*OpBilateral)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBilateralDefault() }) } // register the operator for JSON decoding

func NewOpBilateralDefault() *OpBilateral {
	p := core.DefaultParams()
	return NewOpBilateral(p.DomainSigma, p.RangeSigma)
}

func NewOpBilateral(domainSigma, rangeSigma float64) *OpBilateral {
	op := OpBilateral{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "bilateral", Active: true}},
		DomainSigma: []float64{domainSigma},
		RangeSigma:  rangeSigma,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBilateral) UnmarshalJSON(data []byte) error {
	type defaults OpBilateral
	def := defaults(*NewOpBilateralDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpBilateral(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpBilateral) Apply(f *field.Field, c *ops.Context) (result *field.Field, err error) {
	if !op.Active {
		return f, nil
	}
	p := bilateral.Params{DomainSigma: op.DomainSigma, RangeSigma: op.RangeSigma, SamplingRate: op.SamplingRate}
	return bilateral.Filter(c.Context(), f, p, c.Options(1))
}

// Tone maps each input independently. Takes n inputs, produces n outputs
type OpToneMap struct {
	ops.OpUnaryBase
	RangeSigma  float64 `json:"rangeSigma"`
	DomainSigma float64 `json:"domainSigma"`
	Contrast    float64 `json:"contrast"`
}

var _ ops.Operator = (*OpToneMap)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpToneMapDefault() }) } // register the operator for JSON decoding

func NewOpToneMapDefault() *OpToneMap {
	p := core.DefaultParams()
	return NewOpToneMap(p.RangeSigma, p.DomainSigma, p.Contrast)
}

func NewOpToneMap(rangeSigma, domainSigma, contrast float64) *OpToneMap {
	op := OpToneMap{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "toneMap", Active: true}},
		RangeSigma:  rangeSigma,
		DomainSigma: domainSigma,
		Contrast:    contrast,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpToneMap) UnmarshalJSON(data []byte) error {
	type defaults OpToneMap
	def := defaults(*NewOpToneMapDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpToneMap(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpToneMap) Apply(f *field.Field, c *ops.Context) (result *field.Field, err error) {
	if !op.Active {
		return f, nil
	}
	fmt.Fprintf(c.Log, "%d: Tone mapping with range %.4g domain %.4g contrast %.4g\n",
		f.ID, op.RangeSigma, op.DomainSigma, op.Contrast)
	return core.ToneMap(c.Context(), f, op.RangeSigma, op.DomainSigma, op.Contrast, c.Options(1))
}
