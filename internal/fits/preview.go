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

package fits

import (
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/mlnoga/hdrlight/internal/field"
)

// Returns the central 2D slice of the field, with its width and height.
// 1D fields are returned as a single row. The slice shares data with the field
func CentralSlice(f *field.Field) (data []float32, width, height int) {
	switch len(f.Size) {
	case 0:
		return nil, 0, 0
	case 1:
		return f.Data, f.Size[0], 1
	}
	width, height = f.Size[0], f.Size[1]
	plane := width * height
	offset := 0
	if len(f.Size) > 2 {
		offset = (f.Len() / plane / 2) * plane
	}
	return f.Data[offset : offset+plane], width, height
}

// Returns a function mapping values to [0,1] linearly between min and max, followed by the gamma curve.
// NaNs map to zero
func newStretch(min, max, gamma float32) func(float32) float32 {
	scale := 1 / (max - min)
	gammaInv := 1.0
	if gamma > 0 {
		gammaInv = 1 / float64(gamma)
	}
	return func(v float32) float32 {
		v = (v - min) * scale
		if math.IsNaN(float64(v)) || v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		if gammaInv != 1 {
			v = float32(math.Pow(float64(v), gammaInv))
		}
		return v
	}
}

// Color scheme of a JPEG preview
type Palette int

const (
	Gray Palette = iota
	FalseColor
)

// Writes a JPEG preview of the central slice of the field to the file with the given name
func WriteJPGFile(f *field.Field, fileName string, min, max, gamma float32, palette Palette, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteJPG(writer, f, min, max, gamma, palette, quality); err != nil {
		return err
	}
	return writer.Flush()
}

// Writes a JPEG preview of the central slice of the field, using the given min, max and gamma.
// The false color palette runs from blue for min to red for max
func WriteJPG(writer io.Writer, f *field.Field, min, max, gamma float32, palette Palette, quality int) error {
	data, width, height := CentralSlice(f)
	stretch := newStretch(min, max, gamma)
	var img image.Image
	if palette == FalseColor {
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				rgba.SetRGBA(x, y, falseColor(stretch(data[y*width+x])))
			}
		}
		img = rgba
	} else {
		gray := image.NewGray(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				gray.SetGray(x, y, color.Gray{Y: uint8(stretch(data[y*width+x]) * 255)})
			}
		}
		img = gray
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Maps a value in [0,1] to a hue from blue to red
func falseColor(v float32) color.RGBA {
	r, g, b := colorful.Hsv(240*(1-float64(v)), 1, 1).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
