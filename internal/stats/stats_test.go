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

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQSelect(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 1; n < 300; n++ {
		arr := make([]float32, n)
		for j := range arr {
			arr[j] = float32(j + 1)
		}
		rng.Shuffle(n, func(i, j int) { arr[i], arr[j] = arr[j], arr[i] })

		k := 1 + rng.Intn(n)
		if got := QSelectFloat32(append([]float32(nil), arr...), k); got != float32(k) {
			t.Fatalf("select %d of 1..%d got %f", k, n, got)
		}
		if got, want := QSelectMedianFloat32(arr), float32(n/2+1); got != want {
			t.Fatalf("median of 1..%d got %f want %f", n, got, want)
		}
	}
}

func TestQSelectDuplicates(t *testing.T) {
	arr := []float32{3, 1, 3, 3, 2, 3, 1}
	assert.Equal(t, float32(3), QSelectMedianFloat32(arr))
}

func TestCalcBasic(t *testing.T) {
	s := CalcBasic([]float32{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, float32(2), s.Min)
	assert.Equal(t, float32(9), s.Max)
	assert.InDelta(t, 5, s.Mean, 1e-6)
	assert.InDelta(t, 2, s.StdDev, 1e-6)

	assert.Equal(t, &Stats{}, CalcBasic(nil))
}

func TestCalcExtendedExact(t *testing.T) {
	s := CalcExtended([]float32{1, 2, 3, 4, 100}, 0)
	assert.Equal(t, float32(3), s.Location)
	// absolute deviations 2 1 0 1 97, median 1
	assert.InDelta(t, 1.4826, s.Scale, 1e-6)
}

func TestCalcExtendedSampled(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	data := make([]float32, 200000)
	for i := range data {
		data[i] = 10 + 2*float32(rng.NormFloat64())
	}
	s := CalcExtended(data, 32*1024)
	assert.InDelta(t, 10, s.Location, 0.1)
	assert.InDelta(t, 2, s.Scale, 0.1)
	assert.InDelta(t, 2, s.StdDev, 0.05)
}

func TestHistogram(t *testing.T) {
	bins := make([]int32, 5)
	Histogram([]float32{0, 0.1, 1, 2, 3.9, 4, 5, -1}, 0, 4, bins)
	assert.Equal(t, []int32{3, 1, 1, 1, 2}, bins)

	x, y := GetPeak(bins, 0, 4)
	assert.Equal(t, float32(0.5), x)
	assert.Equal(t, float32(3), y)
}

func TestHistogramLocScale(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	data := make([]float32, 50000)
	for i := range data {
		data[i] = 5 + float32(rng.NormFloat64())
	}
	loc, scale, err := HistogramLocScale(data, 256)
	require.NoError(t, err)
	assert.InDelta(t, 5, loc, 0.1)
	assert.InDelta(t, 1, scale, 0.15)
	assert.False(t, math.IsNaN(float64(loc)))
}

func TestHistogramDegenerate(t *testing.T) {
	_, _, err := GetModeStdDevFromHistogram([]int32{1, 2}, 0, 1, 1)
	assert.Error(t, err)
	_, _, err = GetModeStdDevFromHistogram([]int32{1, 2, 3}, 1, 1, 1)
	assert.Error(t, err)
}
