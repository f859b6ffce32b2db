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
	"fmt"
	"math"

	"github.com/valyala/fastrand"
)

// Number of random samples used for approximate location and scale estimates
const DefaultNumSamples = 64 * 1024

// Statistics of a field's samples
type Stats struct {
	Min    float32 // Minimum
	Max    float32 // Maximum
	Mean   float32 // Mean (average)
	StdDev float32 // Standard deviation (norm 2, sigma)

	Location float32 // Location indicator, the (sampled) median
	Scale    float32 // Scale indicator, the (sampled) MAD normalized to a Gaussian sigma
}

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale)
}

// Pretty print stats to CSV header
func (s *Stats) ToCSVHeader() string {
	return "Min,Max,Mean,StdDev,Location,Scale"
}

// Pretty print stats to CSV line item
func (s *Stats) ToCSVLine() string {
	return fmt.Sprintf("%.6g,%.6g,%.6g,%.6g,%.6g,%.6g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale)
}

// Calculate minimum, maximum, mean and standard deviation of the data
func CalcBasic(data []float32) *Stats {
	s := &Stats{}
	if len(data) == 0 {
		return s
	}
	var mean float64
	s.Min, s.Max, mean = calcMinMaxMean(data)
	s.Mean = float32(mean)
	s.StdDev = float32(math.Sqrt(calcVariance(data, mean)))
	return s
}

// Calculate basic statistics plus median and MAD. Above numSamples data points,
// the median and MAD are estimated from a random subsample
func CalcExtended(data []float32, numSamples int) *Stats {
	s := CalcBasic(data)
	if len(data) == 0 {
		return s
	}
	if numSamples <= 0 {
		numSamples = DefaultNumSamples
	}
	samples := make([]float32, min(numSamples, len(data)))
	s.Location = ApproxMedian(data, samples)
	s.Scale = ApproxMAD(data, s.Location, samples)
	return s
}

// Returns minimum and maximum of the data
func MinMax(data []float32) (min, max float32) {
	min, max, _ = calcMinMaxMean(data)
	return min, max
}

// Calculate minimum, maximum and mean of given data. Mean is accumulated in float64
func calcMinMaxMean(data []float32) (min, max float32, mean float64) {
	min, max = data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		mean += float64(v)
	}
	return min, max, mean / float64(len(data))
}

// Calculate variance of given data from provided mean
func calcVariance(data []float32, mean float64) float64 {
	variance := 0.0
	for _, v := range data {
		diff := float64(v) - mean
		variance += diff * diff
	}
	return variance / float64(len(data))
}

// Fills the samples from the data. If there are enough samples to hold all the data,
// the data is copied, otherwise drawn at random
func fillSamples(data, samples []float32, transform func(float32) float32) {
	if len(samples) >= len(data) {
		for i, d := range data {
			samples[i] = transform(d)
		}
		return
	}
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = transform(data[rng.Uint32n(max)])
	}
}

// Calculates approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad. Exact if samples can hold all of the data
func ApproxMedian(data []float32, samples []float32) float32 {
	if len(samples) > len(data) {
		samples = samples[:len(data)]
	}
	fillSamples(data, samples, func(d float32) float32 { return d })
	return QSelectMedianFloat32(samples)
}

// Calculates approximate median of absolute differences from the location, normalized to a Gaussian standard deviation.
// Uses provided samples array as scratchpad
func ApproxMAD(data []float32, location float32, samples []float32) float32 {
	if len(samples) > len(data) {
		samples = samples[:len(data)]
	}
	fillSamples(data, samples, func(d float32) float32 { return float32(math.Abs(float64(d - location))) })
	return QSelectMedianFloat32(samples) * 1.4826
}
