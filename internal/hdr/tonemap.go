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
	"context"
	"fmt"
	"math"

	"github.com/mlnoga/hdrlight/internal/bilateral"
	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/stats"
)

// Relative base range below which the contrast scale is considered undefined
const minBaseRange = 1e-5

// Layers of a tone mapped field. Base and Detail are in the log domain
type ToneMapResult struct {
	Output *field.Field
	Base   *field.Field
	Detail *field.Field
	Scale  float64 // contrast scale applied to the base layer
}

// Tone maps a strictly positive field by compressing its bilateral filtered
// base layer in the log domain while keeping the detail layer. The output is
// normalized so the brightest base sample maps to one
func ToneMap(ctx context.Context, image *field.Field, rangeSigma, domainSigma, contrast float64, opt Options) (*field.Field, error) {
	res, err := ToneMapLayers(ctx, image, rangeSigma, domainSigma, contrast, opt)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// Tone maps a strictly positive field, returning the output plus the intermediate layers
func ToneMapLayers(ctx context.Context, image *field.Field, rangeSigma, domainSigma, contrast float64, opt Options) (*ToneMapResult, error) {
	if image == nil || image.Len() == 0 {
		return nil, fmt.Errorf("tone map: %w: empty input", ErrInvalidParameter)
	}
	if !finite(contrast) {
		return nil, fmt.Errorf("tone map: %w: contrast %g", ErrInvalidParameter, contrast)
	}

	logImage := field.NewLike(image)
	for i, v := range image.Data {
		if !(v > 0) || math.IsInf(float64(v), 0) {
			return nil, &DomainError{Stage: "tone map logarithm", Index: i, Value: float64(v), Reason: "sample is not positive and finite"}
		}
		logImage.Data[i] = float32(math.Log(float64(v)))
	}

	base, err := bilateral.Filter(ctx, logImage, bilateral.NewParams(domainSigma, rangeSigma), opt)
	if err != nil {
		return nil, fmt.Errorf("tone map: %w", err)
	}

	min, max := stats.MinMax(base.Data)
	fmt.Fprintf(opt.Writer(), "%d: Min/Max in log image: %.6g/%.6g\n", image.ID, min, max)
	baseRange := float64(max) - float64(min)
	if !(baseRange > minBaseRange*math.Max(1, math.Max(math.Abs(float64(min)), math.Abs(float64(max))))) {
		return nil, &DomainError{Stage: "tone map scale", Index: -1, Value: baseRange, Reason: "base layer has no dynamic range"}
	}
	scale := contrast / baseRange
	fmt.Fprintf(opt.Writer(), "%d: Applying scaling in log domain of %.6g\n", image.ID, scale)

	detail, out := field.NewLike(image), field.NewLike(image)
	for i, l := range logImage.Data {
		b := float64(base.Data[i])
		d := float64(l) - b
		detail.Data[i] = float32(d)
		// exp(b*scale+d) / exp(max*scale), folded to avoid overflow
		out.Data[i] = float32(math.Exp((b-float64(max))*scale + d))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ToneMapResult{Output: out, Base: base, Detail: detail, Scale: scale}, nil
}
