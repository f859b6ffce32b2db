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
	"testing"

	"github.com/mlnoga/hdrlight/internal/field"
)

type gaussianKernel1DTestCase struct {
	Sigma  float64
	Kernel []float32
}

func TestGaussianKernel1D(t *testing.T) {
	epsilon := 1e-5
	tcs := []gaussianKernel1DTestCase{
		{0.5, []float32{0.00135, 0.157305, 0.68269, 0.157305, 0.00135}},
		{1.0, []float32{0.00598, 0.060626, 0.241843, 0.383103, 0.241843, 0.060626, 0.00598}},
		{2.0, []float32{0.000489, 0.002403, 0.009246, 0.02784, 0.065602, 0.120999, 0.174697, 0.197448,
			0.174697, 0.120999, 0.065602, 0.02784, 0.009246, 0.002403, 0.000489}},
	}

	for _, tc := range tcs {
		sigma := tc.Sigma
		kernel := GaussianKernel1D(sigma)
		if len(kernel) != len(tc.Kernel) {
			t.Fatalf("sigma=%f len=%d; want %d", sigma, len(kernel), len(tc.Kernel))
		}
		sum := float32(0)
		for i, k := range kernel {
			if math.Abs(float64(k-tc.Kernel[i])) > epsilon {
				t.Errorf("sigma=%f k[%d]=%f; want %f", sigma, i, k, tc.Kernel[i])
			}
			if k != kernel[len(kernel)-1-i] {
				t.Errorf("sigma=%f kernel not symmetric at %d", sigma, i)
			}
			sum += k
		}
		if math.Abs(float64(sum-1)) > epsilon {
			t.Errorf("sigma=%f sum=%f; want 1", sigma, sum)
		}
	}
}

func TestKernelRadiusCapturesMass(t *testing.T) {
	for _, sigma := range []float64{0.3, 1, 1.7, 4, 10} {
		r := KernelRadius(sigma)
		inside := GaussianDefiniteIntegral(0, sigma, float64(r)+0.5) - GaussianDefiniteIntegral(0, sigma, -float64(r)-0.5)
		if inside < 0.999 {
			t.Errorf("sigma=%f radius=%d captures %f; want >=0.999", sigma, r, inside)
		}
		if r > 0 {
			smaller := GaussianDefiniteIntegral(0, sigma, float64(r)-0.5) - GaussianDefiniteIntegral(0, sigma, -float64(r)+0.5)
			if smaller >= 0.999 {
				t.Errorf("sigma=%f radius=%d is not minimal", sigma, r)
			}
		}
	}
}

func TestReflect(t *testing.T) {
	tcs := []struct{ size, x, want int }{
		{5, -1, 0}, {5, -2, 1}, {5, 5, 4}, {5, 6, 3}, {5, 2, 2}, {3, -4, 2}, {3, 7, 1}, {1, -3, 0},
	}
	for _, tc := range tcs {
		if got := reflect(tc.size, tc.x); got != tc.want {
			t.Errorf("reflect(%d,%d)=%d; want %d", tc.size, tc.x, got, tc.want)
		}
	}
}

func TestBlurPeak3D(t *testing.T) {
	dims := []int{15, 17, 9}
	epsilon := 1e-5
	for _, sigma := range []float64{0.5, 1.0} {
		data := make([]float32, field.NumSamples(dims))
		peak := float32(9.99)
		center := []int{7, 8, 4}
		f := field.New(dims)
		f.Data = data
		f.Set(center, peak)
		r := KernelRadius(sigma)

		for _, b := range []Boundary{Mirror, Zero} {
			blurred := Data(data, dims, sigma, b, 3)
			g := field.New(dims)
			g.Data = blurred

			sum := float32(0)
			idx := make([]int, 3)
			for i, v := range blurred {
				g.Coords(i, idx)
				inside := true
				for a := range idx {
					if idx[a] < center[a]-r || idx[a] > center[a]+r {
						inside = false
					}
				}
				if inside && (v <= 0 || v >= peak) {
					t.Errorf("sigma=%f %v b%v=%f; want >0 <%f", sigma, b, idx, v, peak)
				}
				if !inside && v != 0 {
					t.Errorf("sigma=%f %v b%v=%f; want 0", sigma, b, idx, v)
				}
				sum += v
			}
			if math.Abs(float64(sum-peak)) > epsilon*float64(peak)*10 {
				t.Errorf("sigma=%f %v sum=%f; want %f", sigma, b, sum, peak)
			}
		}
		if data[f.Index(center)] != peak {
			t.Errorf("input modified")
		}
	}
}

func TestBlurBoundaries(t *testing.T) {
	dims := []int{8, 7}
	data := make([]float32, 56)
	for i := range data {
		data[i] = 2.5
	}

	mirrored := Data(data, dims, 1.0, Mirror, 2)
	for i, v := range mirrored {
		if math.Abs(float64(v-2.5)) > 1e-5 {
			t.Errorf("mirror b[%d]=%f; want 2.5", i, v)
		}
	}

	zeroed := Data(data, dims, 1.0, Zero, 2)
	corner, inner := zeroed[0], zeroed[2*8+2]
	if !(corner < inner && inner <= 2.5+1e-5) {
		t.Errorf("zero boundary corner %f inner %f; want corner < inner <= 2.5", corner, inner)
	}
	// the sample at (2,2) loses the outermost left tap along x and along y
	k := GaussianKernel1D(1.0)
	want := float32(2.5) * (1 - k[0]) * (1 - k[0])
	if math.Abs(float64(inner-want)) > 1e-5 {
		t.Errorf("zero boundary inner %f; want %f", inner, want)
	}
}

func TestBlurField(t *testing.T) {
	f := field.NewWithGeometry([]int{4, 4}, []float64{1, 2}, []float64{0.5, 0.5}, nil)
	f.ID = 7
	for i := range f.Data {
		f.Data[i] = float32(i % 4)
	}
	g := Field(f, 1, 1)
	if !g.SameGeometry(f) || g.ID != 7 {
		t.Fatalf("geometry not preserved")
	}
	// mirrored boundaries preserve the mean
	sumF, sumG := float32(0), float32(0)
	for i := range f.Data {
		sumF += f.Data[i]
		sumG += g.Data[i]
	}
	if math.Abs(float64(sumF-sumG)) > 1e-4 {
		t.Errorf("sum %f; want %f", sumG, sumF)
	}
}
