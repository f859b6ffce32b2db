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
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins. Values outside are clamped
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	last := len(bins) - 1
	scale := float32(last) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index > last {
			index = last
		}
		bins[index]++
	}
}

// Returns the center of the given bin
func binCenter(i int, min, max float32, numBins int) float32 {
	return min + (float32(i)+0.5)*(max-min)/float32(numBins-1)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	return binCenter(maxIndex, min, max, len(bins)), float32(maxValue)
}

// Calculates the mode and the standard deviation of the given histogram by
// fitting a normal distribution, starting from the histogram peak and the given sigma guess
func GetModeStdDevFromHistogram(bins []int32, min, max, sigmaGuess float32) (mode, stdDev float32, err error) {
	if len(bins) < 3 || !(max > min) {
		return 0, 0, errors.New("histogram needs at least three bins and a positive range")
	}
	if !(sigmaGuess > 0) {
		sigmaGuess = (max - min) / 8
	}
	peak, peakVal := GetPeak(bins, min, max)

	// Minimize the distance between the histogram and a scaled normal distribution
	x0 := []float64{float64(peakVal * sigmaGuess) * math.Sqrt(2*math.Pi), float64(peak), float64(sigmaGuess)}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range bins {
				xmusig := (float64(binCenter(i, min, max, len(bins))) - mu) / sigma
				diff := float64(y) - scaler*math.Exp(-0.5*xmusig*xmusig)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}

// Estimates location and scale of the data from a normal fit to its histogram
func HistogramLocScale(data []float32, numBins int) (loc, scale float32, err error) {
	s := CalcBasic(data)
	bins := make([]int32, numBins)
	Histogram(data, s.Min, s.Max, bins)
	return GetModeStdDevFromHistogram(bins, s.Min, s.Max, s.StdDev)
}
