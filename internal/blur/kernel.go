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

package blur

import (
	"math"
)

// Maximum mass of the gaussian allowed outside the kernel on each side
const tailMass = 0.0005

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func GaussianDefiniteIntegral(mu, sigma, x float64) float64 {
	return 0.5 * (1 + math.Erf((x-mu)/(math.Sqrt2*sigma)))
}

// Returns the kernel radius for the given sigma, i.e. the smallest radius
// for which the area under the curve left of the kernel is below tailMass
func KernelRadius(sigma float64) int {
	radius := 0
	for GaussianDefiniteIntegral(0, sigma, -0.5-float64(radius)) >= tailMass {
		radius++
	}
	return radius
}

// Generates a 1D gaussian kernel for the given sigma. Based on symbolic integration via error function.
// Captures at least 99.9% of the mass before normalization
func GaussianKernel1D(sigma float64) (kernel []float32) {
	radius := KernelRadius(sigma)
	kernel = make([]float32, 2*radius+1)
	values := make([]float64, 2*radius+1)

	// left half and center via symbolic integration
	sum := 0.0
	lower := GaussianDefiniteIntegral(0, sigma, -0.5-float64(radius))
	for i := 0; i <= radius; i++ {
		upper := GaussianDefiniteIntegral(0, sigma, -0.5-float64(radius)+float64(i+1))
		values[i] = upper - lower
		sum += values[i]
		lower = upper
	}

	// mirror the right half to keep the kernel exactly symmetric
	for i := 1; i <= radius; i++ {
		values[radius+i] = values[radius-i]
		sum += values[radius+i]
	}

	// normalize to compensate for the truncated tails
	for i, v := range values {
		kernel[i] = float32(v / sum)
	}
	return kernel
}
