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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/parallel"
)

// Output below which the bias field ratio is set to zero
const biasEpsilon = 1e-8

// Intermediate results of a single channel
type ChannelResult struct {
	Pyramid *Pyramid       // multi-light pyramid, nil in tone map mode
	Base    *field.Field   // fused base layer, or log domain base layer in tone map mode
	Detail  *field.Field   // fused detail layer, or log domain detail layer in tone map mode
	ToneMap *ToneMapResult // nil in multi-light mode
}

// Results of the HDR compositor. Optional outputs are nil unless requested
type Result struct {
	Output        *field.Field
	Base          *field.Field // root sum of squares of the channel bases
	Detail        *field.Field // sum of the channel details
	SumsOfSquares *field.Field
	Average       *field.Field
	BiasField     *field.Field
	Channels      []ChannelResult
}

// Composites one or more channels into a high dynamic range field. In multi-light mode,
// each channel is decomposed into a pyramid and fused; channel bases are combined by root
// sum of squares, channel details by summation. In tone map mode, each channel is tone
// mapped independently and the output is the first channel's result.
// Channels are processed concurrently. The output has the geometry of the first channel
func Composite(ctx context.Context, channels []*field.Field, p Params, opt Options) (*Result, error) {
	if len(channels) == 0 {
		return nil, &MissingInputError{Channel: -1}
	}
	for i, c := range channels {
		if c == nil {
			return nil, &MissingInputError{Channel: i}
		}
		if !c.SameSize(channels[0]) {
			return nil, fmt.Errorf("channel %d: %w: %s vs %s", i, ErrGeometryMismatch,
				c.DimensionsToString(), channels[0].DimensionsToString())
		}
	}
	if err := p.Validate(len(channels)); err != nil {
		return nil, err
	}
	fmt.Fprintf(opt.Writer(), "%d: Compositing %d channels with %s\n", channels[0].ID, len(channels), p.String())

	opt = opt.Synchronized() // channels log and report progress concurrently
	res := &Result{Channels: make([]ChannelResult, len(channels))}
	mutex, done := sync.Mutex{}, 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel.Workers(opt.Workers))
	for i, c := range channels {
		i, c := i, c
		g.Go(func() error {
			var err error
			if p.Mode == ModeMultiLight {
				err = multiLightChannel(gctx, c, &p, opt, &res.Channels[i])
			} else {
				err = toneMapChannel(gctx, c, &p, opt, &res.Channels[i])
			}
			if err != nil {
				return fmt.Errorf("channel %d: %w", i, err)
			}
			mutex.Lock()
			defer mutex.Unlock()
			done++
			opt.Report("channel", done, len(channels))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.Mode == ModeToneMap {
		first := res.Channels[0]
		res.Output, res.Base, res.Detail = first.ToneMap.Output, first.Base, first.Detail
		return res, nil
	}

	combineChannels(res, channels[0], p.Beta)
	if p.SumsOfSquares {
		res.SumsOfSquares = SumsOfSquares(channels)
	}
	if p.Average {
		res.Average = Average(channels)
	}
	if p.BiasField {
		res.BiasField = BiasField(channels, res.Output)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func multiLightChannel(ctx context.Context, c *field.Field, p *Params, opt Options, res *ChannelResult) error {
	pyr, err := BuildPyramid(ctx, c, p.RangeSigma, p.DomainSigma, p.Levels, opt)
	if err != nil {
		return err
	}
	base, detail, err := Fuse(ctx, pyr.Levels, pyr.Details, p.Levels, p.Lambda, opt)
	if err != nil {
		return err
	}
	res.Pyramid, res.Base, res.Detail = pyr, base, detail
	return nil
}

func toneMapChannel(ctx context.Context, c *field.Field, p *Params, opt Options, res *ChannelResult) error {
	tm, err := ToneMapLayers(ctx, c, p.RangeSigma, p.DomainSigma, p.Contrast, opt)
	if err != nil {
		return err
	}
	res.ToneMap, res.Base, res.Detail = tm, tm.Base, tm.Detail
	return nil
}

// Combines the channel bases by root sum of squares and the channel details by summation,
// and composes the output as base + beta*detail. Channel weights are not applied
func combineChannels(res *Result, first *field.Field, beta float64) {
	res.Base, res.Detail, res.Output = field.NewLike(first), field.NewLike(first), field.NewLike(first)
	for i := range res.Output.Data {
		sumSq, sum := 0.0, 0.0
		for _, c := range res.Channels {
			b := float64(c.Base.Data[i])
			sumSq += b * b
			sum += float64(c.Detail.Data[i])
		}
		base := math.Sqrt(sumSq)
		res.Base.Data[i], res.Detail.Data[i] = float32(base), float32(sum)
		res.Output.Data[i] = float32(base + beta*sum)
	}
}

// Returns the root of the sum of squares of the channels
func SumsOfSquares(channels []*field.Field) *field.Field {
	res := field.NewLike(channels[0])
	for i := range res.Data {
		sumSq := 0.0
		for _, c := range channels {
			v := float64(c.Data[i])
			sumSq += v * v
		}
		res.Data[i] = float32(math.Sqrt(sumSq))
	}
	return res
}

// Returns the average of the channels
func Average(channels []*field.Field) *field.Field {
	res := field.NewLike(channels[0])
	n := float64(len(channels))
	for i := range res.Data {
		sum := 0.0
		for _, c := range channels {
			sum += float64(c.Data[i])
		}
		res.Data[i] = float32(sum / n)
	}
	return res
}

// Returns the sum of the ratios of each channel to the output. Samples
// where the output is zero are set to zero
func BiasField(channels []*field.Field, output *field.Field) *field.Field {
	res := field.NewLike(channels[0])
	for i, o := range output.Data {
		if math.Abs(float64(o)) < biasEpsilon {
			continue
		}
		sum := 0.0
		for _, c := range channels {
			sum += float64(c.Data[i]) / float64(o)
		}
		res.Data[i] = float32(sum)
	}
	return res
}
