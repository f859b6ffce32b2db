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
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/hdrlight/internal/blur"
	"github.com/mlnoga/hdrlight/internal/field"
)

func constantField(size []int, v float32) *field.Field {
	f := field.New(size)
	for i := range f.Data {
		f.Data[i] = v
	}
	return f
}

// A noisy ramp along x, with values in [0.1, 0.9]
func noisyRamp(w, h int, seed int64) *field.Field {
	rng := rand.New(rand.NewSource(seed))
	f := field.New([]int{w, h})
	for i := range f.Data {
		x := i % w
		f.Data[i] = float32(0.2 + 0.6*float64(x)/float64(w-1) + (rng.Float64()-0.5)*0.2)
	}
	return f
}

// Sum of absolute forward differences along both axes
func totalVariation(f *field.Field) float64 {
	w, h := f.Size[0], f.Size[1]
	sum := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := f.Data[y*w+x]
			if x+1 < w {
				sum += math.Abs(float64(f.Data[y*w+x+1] - v))
			}
			if y+1 < h {
				sum += math.Abs(float64(f.Data[(y+1)*w+x] - v))
			}
		}
	}
	return sum
}

func TestSpatialFactor(t *testing.T) {
	tcs := []struct {
		k    int
		want float64
	}{
		{0, 1}, {1, math.Sqrt(3)}, {2, 2}, {3, 4}, {4, 8},
	}
	for _, tc := range tcs {
		if got := spatialFactor(tc.k); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("spatialFactor(%d)=%f; want %f", tc.k, got, tc.want)
		}
	}
}

func TestPyramidMonotonicity(t *testing.T) {
	for seed := int64(1); seed <= 3; seed++ {
		img := noisyRamp(20, 20, seed)
		pyr, err := BuildPyramid(context.Background(), img, 4, 2, 3, Options{})
		require.NoError(t, err)
		require.Len(t, pyr.Levels, 3)
		require.Len(t, pyr.Details, 3)

		prev := totalVariation(img)
		for k, level := range pyr.Levels {
			tv := totalVariation(level)
			assert.LessOrEqual(t, tv, prev, "seed %d level %d", seed, k)
			prev = tv
		}
	}
}

func TestPyramidReconstruction(t *testing.T) {
	img := noisyRamp(16, 12, 4)
	pyr, err := BuildPyramid(context.Background(), img, 0.5, 1.5, 4, Options{Workers: 3})
	require.NoError(t, err)
	last := pyr.Levels[len(pyr.Levels)-1]
	for i, v := range img.Data {
		sum := float64(last.Data[i])
		for _, d := range pyr.Details {
			sum += float64(d.Data[i])
		}
		assert.InDelta(t, v, sum, 1e-5, "sample %d", i)
	}
}

func TestPyramidErrors(t *testing.T) {
	_, err := BuildPyramid(context.Background(), noisyRamp(8, 8, 1), 1, 1, 0, Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = BuildPyramid(context.Background(), nil, 1, 1, 2, Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = BuildPyramid(context.Background(), noisyRamp(8, 8, 1), -1, 1, 2, Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pyr, err := BuildPyramid(ctx, noisyRamp(8, 8, 1), 1, 1, 2, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pyr)
}

func TestLambdaSchedule(t *testing.T) {
	lambda := 0.8
	assert.InDeltaSlice(t, []float64{lambda, lambda + 0.05, lambda + 0.15}, LambdaSchedule(lambda, 3), 1e-12)
	assert.Equal(t, []float64{0.5, 0.5}, LambdaSchedule(0.5, 2))
	assert.Equal(t, []float64{1, 1, 1, 1}, LambdaSchedule(1, 4))
}

// Builds a pyramid of constant level and detail fields
func constantPyramid(levels int, level, diff float32) ([]*field.Field, []*field.Field) {
	ls, ds := make([]*field.Field, levels), make([]*field.Field, levels)
	for k := range ls {
		ls[k], ds[k] = constantField([]int{3, 3}, level), constantField([]int{3, 3}, diff)
	}
	return ls, ds
}

func TestFuseSingleLevel(t *testing.T) {
	ls, ds := constantPyramid(1, 2, -0.5)
	base, detail, err := Fuse(context.Background(), ls, ds, 1, 0.8, Options{})
	require.NoError(t, err)

	// no gradient, so C=0 and the weight is exp(|d|)
	compressed := -math.Pow(0.5, 0.8)
	want := compressed * math.Exp(0.5)
	for i := range detail.Data {
		assert.InDelta(t, want, detail.Data[i], 1e-5)
		assert.InDelta(t, compressed, ds[0].Data[i], 1e-6)
		assert.Equal(t, float32(2), base.Data[i])
	}
	assert.NotSame(t, ls[0], base)
}

func TestFuseBlurredWeights(t *testing.T) {
	// constant level, so C=0 and the raw weight is exp(|d|)
	level := constantField([]int{5}, 2)
	diff := field.New([]int{5})
	diff.Data = []float32{0, 1, -2, 0, 0}
	weights := []float64{1, math.E, math.E * math.E, 1, 1}
	compressed := []float64{0, 1, -math.Sqrt(2), 0, 0}

	_, detail, err := Fuse(context.Background(), []*field.Field{level}, []*field.Field{diff}, 1, 0.5, Options{})
	require.NoError(t, err)

	// weights blurred with unit sigma, mirrored at the boundary
	kernel := blur.GaussianKernel1D(1)
	r := len(kernel) / 2
	mirror := func(x int) int {
		if x < 0 {
			return -x - 1
		}
		if x >= 5 {
			return 2*5 - x - 1
		}
		return x
	}
	for i := range detail.Data {
		smoothed := 0.0
		for j := -r; j <= r; j++ {
			smoothed += float64(kernel[j+r]) * weights[mirror(i+j)]
		}
		assert.InDelta(t, compressed[i]*smoothed, detail.Data[i], 1e-4, "sample %d", i)
		assert.InDelta(t, compressed[i], diff.Data[i], 1e-6, "sample %d", i)
	}
	// the blur spreads weight from the large detail to its neighbor
	assert.Greater(t, float64(detail.Data[1]), math.E)
}

func TestFuseLambdaSchedule(t *testing.T) {
	tcs := []struct {
		levels int
		want   float64
	}{
		{2, math.Exp(0.5) * 2 * math.Pow(0.5, 0.8)},
		{3, math.Exp(0.5) * (math.Pow(0.5, 0.8) + math.Pow(0.5, 0.85) + math.Pow(0.5, 0.95))},
		{4, math.Exp(0.5) * 4 * math.Pow(0.5, 0.8)},
	}
	for _, tc := range tcs {
		ls, ds := constantPyramid(tc.levels, 1, 0.5)
		ls[tc.levels-1] = constantField([]int{3, 3}, 7)
		base, detail, err := Fuse(context.Background(), ls, ds, tc.levels, 0.8, Options{Workers: 2})
		require.NoError(t, err)
		assert.InDelta(t, tc.want, detail.Data[4], 1e-5, "levels %d", tc.levels)
		assert.Equal(t, float32(7), base.Data[4], "levels %d", tc.levels)
	}
}

func TestFuseEdgePenalty(t *testing.T) {
	level := field.New([]int{8, 3})
	for i := range level.Data {
		level.Data[i] = 1
		if i%8 >= 4 {
			level.Data[i] = 5
		}
	}
	diff := constantField([]int{8, 3}, 0.1)
	_, detail, err := Fuse(context.Background(), []*field.Field{level}, []*field.Field{diff}, 1, 1, Options{})
	require.NoError(t, err)
	// samples next to the edge see a strong gradient relative to their local minimum
	assert.Less(t, detail.At([]int{3, 1}), detail.At([]int{0, 1}))
	assert.Less(t, detail.At([]int{4, 1}), detail.At([]int{7, 1}))
	assert.Greater(t, detail.At([]int{3, 1}), float32(0))
}

func TestFuseErrors(t *testing.T) {
	var emptyErr *EmptyInputError
	_, _, err := Fuse(context.Background(), nil, nil, 1, 0.8, Options{})
	assert.True(t, errors.As(err, &emptyErr))

	ls, ds := constantPyramid(2, 1, 0.5)
	_, _, err = Fuse(context.Background(), ls, ds[:0], 1, 0.8, Options{})
	assert.True(t, errors.As(err, &emptyErr))

	_, _, err = Fuse(context.Background(), ls, ds, 3, 0.8, Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// |0|^lambda is only zero for positive lambda
	for _, lambda := range []float64{0, -0.5, math.NaN(), math.Inf(1)} {
		_, _, err = Fuse(context.Background(), ls, ds, 2, lambda, Options{})
		assert.ErrorIs(t, err, ErrInvalidParameter, "lambda %g", lambda)
	}

	ds[1] = constantField([]int{4, 3}, 0.5)
	_, _, err = Fuse(context.Background(), ls, ds, 2, 0.8, Options{})
	assert.ErrorIs(t, err, ErrGeometryMismatch)
}

func multiLightParams() Params {
	p := DefaultParams()
	p.Mode = ModeMultiLight
	p.RangeSigma, p.DomainSigma = 0.5, 2
	return p
}

func TestCompositeSingleChannel(t *testing.T) {
	img := noisyRamp(12, 12, 2)
	p := multiLightParams()
	res, err := Composite(context.Background(), []*field.Field{img}, p, Options{})
	require.NoError(t, err)
	require.Len(t, res.Channels, 1)

	ch := res.Channels[0]
	require.NotNil(t, ch.Pyramid)
	require.Len(t, ch.Pyramid.Levels, p.Levels)
	for i, o := range res.Output.Data {
		want := float64(ch.Base.Data[i]) + p.Beta*float64(ch.Detail.Data[i])
		assert.InDelta(t, want, o, 1e-6, "sample %d", i)
		assert.InDelta(t, ch.Base.Data[i], res.Base.Data[i], 1e-7)
		assert.Equal(t, ch.Detail.Data[i], res.Detail.Data[i])
	}
	assert.True(t, res.Output.SameGeometry(img))
	assert.Nil(t, res.SumsOfSquares)
	assert.Nil(t, res.Average)
	assert.Nil(t, res.BiasField)
}

func TestCompositeAuxiliaryOutputs(t *testing.T) {
	a, b := constantField([]int{4, 4}, 1), constantField([]int{4, 4}, 3)
	p := multiLightParams()
	p.SumsOfSquares, p.Average, p.BiasField = true, true, true
	res, err := Composite(context.Background(), []*field.Field{a, b}, p, Options{Workers: 2})
	require.NoError(t, err)

	for i := range res.Output.Data {
		assert.InDelta(t, math.Sqrt(10), res.Output.Data[i], 1e-4)
		assert.InDelta(t, math.Sqrt(10), res.SumsOfSquares.Data[i], 1e-6)
		assert.InDelta(t, 2, res.Average.Data[i], 1e-6)
		assert.InDelta(t, 4, float64(res.BiasField.Data[i])*float64(res.Output.Data[i]), 1e-5)
	}
}

func TestBiasFieldZeroOutput(t *testing.T) {
	a := constantField([]int{2, 1}, 2)
	out := field.New([]int{2, 1})
	out.Data = []float32{0, 4}
	bias := BiasField([]*field.Field{a, a}, out)
	assert.Equal(t, []float32{0, 1}, bias.Data)
}

func TestCompositeWeightsNotApplied(t *testing.T) {
	a, b := noisyRamp(10, 10, 5), noisyRamp(10, 10, 6)
	p := multiLightParams()
	plain, err := Composite(context.Background(), []*field.Field{a, b}, p, Options{})
	require.NoError(t, err)

	p.Weights = []float64{0.1, 5}
	weighted, err := Composite(context.Background(), []*field.Field{a, b}, p, Options{})
	require.NoError(t, err)
	assert.Equal(t, plain.Output.Data, weighted.Output.Data)

	p.Weights = []float64{1, 2, 3}
	_, err = Composite(context.Background(), []*field.Field{a, b}, p, Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCompositeToneMap(t *testing.T) {
	a, b := noisyRamp(10, 10, 7), noisyRamp(10, 10, 8)
	p := DefaultParams()
	p.RangeSigma, p.DomainSigma = 0.4, 2
	res, err := Composite(context.Background(), []*field.Field{a, b}, p, Options{})
	require.NoError(t, err)

	want, err := ToneMap(context.Background(), a, p.RangeSigma, p.DomainSigma, p.Contrast, Options{})
	require.NoError(t, err)
	assert.Equal(t, want.Data, res.Output.Data)
	require.NotNil(t, res.Channels[1].ToneMap)
	assert.Nil(t, res.Channels[0].Pyramid)
}

func TestCompositeErrors(t *testing.T) {
	p := multiLightParams()
	var missing *MissingInputError

	_, err := Composite(context.Background(), nil, p, Options{})
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, -1, missing.Channel)

	_, err = Composite(context.Background(), []*field.Field{noisyRamp(4, 4, 1), nil}, p, Options{})
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 1, missing.Channel)

	_, err = Composite(context.Background(), []*field.Field{noisyRamp(4, 4, 1), noisyRamp(5, 4, 1)}, p, Options{})
	assert.ErrorIs(t, err, ErrGeometryMismatch)

	p.Levels = 0
	_, err = Composite(context.Background(), []*field.Field{noisyRamp(4, 4, 1)}, p, Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	p.Levels, p.Lambda = 2, 0
	_, err = Composite(context.Background(), []*field.Field{noisyRamp(4, 4, 1)}, p, Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// tone mapping a flat channel fails, and no partial result is returned
	p = DefaultParams()
	res, err := Composite(context.Background(), []*field.Field{noisyRamp(6, 6, 1), constantField([]int{6, 6}, 0.5)}, p, Options{})
	var domainErr *DomainError
	assert.True(t, errors.As(err, &domainErr))
	assert.Nil(t, res)
}

func TestCompositeProgress(t *testing.T) {
	channels := map[int]bool{}
	opt := Options{Progress: func(stage string, done, total int) {
		if stage == "channel" {
			channels[done] = true
			assert.Equal(t, 3, total)
		}
	}}
	in := []*field.Field{noisyRamp(6, 6, 1), noisyRamp(6, 6, 2), noisyRamp(6, 6, 3)}
	_, err := Composite(context.Background(), in, multiLightParams(), opt)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, channels)
}

func TestCompositeConcurrentLogAndProgress(t *testing.T) {
	// neither the buffer nor the map is safe for concurrent use
	log := bytes.Buffer{}
	stages := map[string]int{}
	opt := Options{
		Workers:  4,
		Log:      &log,
		Progress: func(stage string, done, total int) { stages[stage]++ },
	}
	p := multiLightParams()
	p.Levels = 2
	in := []*field.Field{noisyRamp(8, 8, 1), noisyRamp(8, 8, 2), noisyRamp(8, 8, 3), noisyRamp(8, 8, 4)}
	_, err := Composite(context.Background(), in, p, opt)
	require.NoError(t, err)

	assert.Equal(t, 4, stages["channel"])
	assert.Equal(t, 4*2, stages["splat"])
	assert.Equal(t, 4*2, strings.Count(log.String(), "Bilateral filter"))
}
